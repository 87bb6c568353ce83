package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryObject struct {
	body         []byte
	contentType  string
	lastModified time.Time
}

// Memory is an in-process Store. Buckets must be created with AddBucket
// before use. It backs dry runs and tests.
type Memory struct {
	mu      sync.RWMutex
	buckets map[string]map[string]memoryObject
	now     func() time.Time

	// Fail, when set, is consulted before every operation; a non-nil
	// return aborts it.
	Fail func(op string, loc Location) error
}

// NewMemory creates an empty store. now stamps LastModified; nil uses
// time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{buckets: make(map[string]map[string]memoryObject), now: now}
}

// AddBucket creates bucket if it does not exist.
func (m *Memory) AddBucket(bucket string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[bucket]; !ok {
		m.buckets[bucket] = make(map[string]memoryObject)
	}
}

// PutAt stores body with an explicit modification time.
func (m *Memory) PutAt(loc Location, body []byte, modified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[loc.Bucket]; !ok {
		m.buckets[loc.Bucket] = make(map[string]memoryObject)
	}
	m.buckets[loc.Bucket][loc.Key] = memoryObject{body: bytes.Clone(body), lastModified: modified}
}

// Keys returns the sorted keys of bucket.
func (m *Memory) Keys(bucket string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.buckets[bucket]))
	for k := range m.buckets[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Body returns the stored bytes of loc, or nil.
func (m *Memory) Body(loc Location) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.buckets[loc.Bucket][loc.Key].body
}

func (m *Memory) fail(op string, loc Location) error {
	if m.Fail == nil {
		return nil
	}
	return m.Fail(op, loc)
}

func (m *Memory) bucket(name string) (map[string]memoryObject, error) {
	b, ok := m.buckets[name]
	if !ok {
		return nil, fmt.Errorf("bucket %s: %w", name, ErrNotFound)
	}
	return b, nil
}

func (m *Memory) List(_ context.Context, bucket, prefix string) ([]Object, error) {
	if err := m.fail("list", Location{Bucket: bucket, Key: prefix}); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, err := m.bucket(bucket)
	if err != nil {
		return nil, err
	}
	var objects []Object
	for k, o := range b {
		if strings.HasPrefix(k, prefix) {
			objects = append(objects, Object{Key: k, Size: int64(len(o.body)), LastModified: o.lastModified})
		}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (m *Memory) Dirs(_ context.Context, bucket, prefix string) ([]string, error) {
	if err := m.fail("dirs", Location{Bucket: bucket, Key: prefix}); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, err := m.bucket(bucket)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var dirs []string
	for k := range b {
		rest, ok := strings.CutPrefix(k, prefix)
		if !ok {
			continue
		}
		i := strings.Index(rest, "/")
		if i < 0 {
			continue
		}
		dir := prefix + rest[:i+1]
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

func (m *Memory) Get(_ context.Context, loc Location) (io.ReadCloser, error) {
	if err := m.fail("get", loc); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, err := m.bucket(loc.Bucket)
	if err != nil {
		return nil, err
	}
	o, ok := b[loc.Key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", loc, ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(o.body)), nil
}

func (m *Memory) Put(_ context.Context, loc Location, body []byte, contentType string) error {
	if err := m.fail("put", loc); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.bucket(loc.Bucket)
	if err != nil {
		return err
	}
	b[loc.Key] = memoryObject{body: bytes.Clone(body), contentType: contentType, lastModified: m.now()}
	return nil
}

func (m *Memory) Copy(_ context.Context, src, dst Location) error {
	if err := m.fail("copy", src); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	from, err := m.bucket(src.Bucket)
	if err != nil {
		return err
	}
	o, ok := from[src.Key]
	if !ok {
		return fmt.Errorf("copy %s: %w", src, ErrNotFound)
	}
	to, err := m.bucket(dst.Bucket)
	if err != nil {
		return err
	}
	o.lastModified = m.now()
	to[dst.Key] = o
	return nil
}

func (m *Memory) Delete(_ context.Context, loc Location) error {
	if err := m.fail("delete", loc); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.bucket(loc.Bucket)
	if err != nil {
		return err
	}
	delete(b, loc.Key)
	return nil
}

func (m *Memory) CheckBucket(_ context.Context, bucket string) error {
	if err := m.fail("check", Location{Bucket: bucket}); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, err := m.bucket(bucket)
	return err
}
