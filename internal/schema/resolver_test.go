package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/raphaelgruber/triggerexport/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCatalog struct {
	cols []Column
	err  error
}

func (s stubCatalog) Columns(context.Context, string, string) ([]Column, error) {
	return s.cols, s.err
}

func dnsColumns() []Column {
	return []Column{
		{Name: "start_time", Type: "bigint"},
		{Name: "subscriber", Type: "string"},
		{Name: "client_address", Type: "string"},
		{Name: "dns_question_name", Type: "string"},
		{Name: "policies", Type: "array<string>"},
		{Name: "parent_policies", Type: "array<string>"},
		{Name: "answers", Type: "array<struct<name:string,ttl:int>>"},
		{Name: "labels", Type: "map<string,string>"},
		{Name: "hour", Type: "bigint", Partition: true},
	}
}

func TestBuildReplacesTriggerInPlace(t *testing.T) {
	proj, err := Build(dnsColumns(), PoliciesColumn)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"start_time", "subscriber", "client_address", "dns_question_name",
		"policy", "parent_policies", "answers", "labels", "hour",
	}, proj.Header())

	trigger := proj.Trigger()
	assert.Equal(t, "policies", trigger.Source)
	assert.Equal(t, FieldExplode, trigger.Kind)

	kinds := map[string]FieldKind{}
	for _, f := range proj.Fields {
		kinds[f.Source] = f.Kind
	}
	assert.Equal(t, FieldCast, kinds["start_time"])
	assert.Equal(t, FieldCast, kinds["parent_policies"], "the non-selected policy column is a plain cast")
	assert.Equal(t, FieldFlatten, kinds["answers"])
	assert.Equal(t, FieldFlatten, kinds["labels"])
	assert.Equal(t, FieldCast, kinds["hour"])
}

func TestBuildParentPolicies(t *testing.T) {
	proj, err := Build(dnsColumns(), ParentPoliciesColumn)
	require.NoError(t, err)

	assert.Equal(t, "parent_policies", proj.Trigger().Source)
	assert.Equal(t, "policies", proj.Fields[4].Alias)
	assert.Equal(t, "policy", proj.Fields[5].Alias)
}

func TestBuildSchemaErrors(t *testing.T) {
	dup := append(dnsColumns(), Column{Name: "policies", Type: "array<string>", Partition: true})
	missing := []Column{{Name: "start_time", Type: "bigint"}}

	tests := []struct {
		name string
		cols []Column
	}{
		{"no trigger column", missing},
		{"duplicate trigger column", dup},
		{"empty schema", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.cols, PoliciesColumn)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindSchema), "got %v", err)
		})
	}
}

func TestBuildRejectsUnknownTrigger(t *testing.T) {
	_, err := Build(dnsColumns(), "hostnames")
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
}

func TestResolve(t *testing.T) {
	r := NewResolver(stubCatalog{cols: dnsColumns()}, nil)

	proj, err := r.Resolve(context.Background(), "dns", "triggers", PoliciesColumn)
	require.NoError(t, err)
	assert.Len(t, proj.Fields, 9)
}

func TestResolveCatalogError(t *testing.T) {
	boom := errors.New("access denied")
	r := NewResolver(stubCatalog{err: boom}, nil)

	_, err := r.Resolve(context.Background(), "dns", "triggers", PoliciesColumn)
	assert.ErrorIs(t, err, boom)
}

func TestIsNested(t *testing.T) {
	assert.True(t, IsNested("MAP<string,int>"))
	assert.True(t, IsNested("struct<a:int>"))
	assert.True(t, IsNested("array<struct<a:int>>"))
	assert.False(t, IsNested("array<string>"))
	assert.False(t, IsNested("bigint"))
}
