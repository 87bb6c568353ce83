package query

import (
	"fmt"
	"strings"

	"github.com/raphaelgruber/triggerexport/internal/apperr"
)

// PartitionValue is one key=value component of a Hive-style partition.
type PartitionValue struct {
	Key   string
	Value string
}

// Partition is an ordered list of partition values such as
// subscriber=acme/year=2021/month=02/day=09/hour=11.
type Partition []PartitionValue

// ParsePartition parses a "k=v/k=v" path as printed by SHOW PARTITIONS.
func ParsePartition(s string) (Partition, error) {
	s = strings.Trim(strings.TrimSpace(s), "/")
	if s == "" {
		return nil, fmt.Errorf("empty partition")
	}
	var p Partition
	for _, part := range strings.Split(s, "/") {
		k, v, ok := strings.Cut(part, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("partition %q: component %q is not key=value", s, part)
		}
		p = append(p, PartitionValue{Key: k, Value: v})
	}
	return p, nil
}

func (p Partition) String() string {
	parts := make([]string, len(p))
	for i, v := range p {
		parts[i] = v.Key + "=" + v.Value
	}
	return strings.Join(parts, "/")
}

// ShowPartitionsSQL renders SHOW PARTITIONS for table. Engine DDL uses Hive
// syntax, so identifiers are backtick quoted.
func ShowPartitionsSQL(table string) (string, error) {
	t, err := hiveIdent(table)
	if err != nil {
		return "", apperr.Wrap(apperr.KindConfiguration, "render show partitions", err)
	}
	return "SHOW PARTITIONS " + t, nil
}

// AddPartitionsSQL renders one ALTER TABLE ... ADD IF NOT EXISTS statement
// registering every partition.
func AddPartitionsSQL(table string, partitions []Partition) (string, error) {
	const op = "render add partitions"
	if len(partitions) == 0 {
		return "", apperr.New(apperr.KindConfiguration, op, "no partitions to add")
	}
	t, err := hiveIdent(table)
	if err != nil {
		return "", apperr.Wrap(apperr.KindConfiguration, op, err)
	}

	var b strings.Builder
	b.WriteString("ALTER TABLE " + t + " ADD IF NOT EXISTS")
	for _, p := range partitions {
		if len(p) == 0 {
			return "", apperr.New(apperr.KindConfiguration, op, "empty partition")
		}
		specs := make([]string, len(p))
		for i, v := range p {
			key, err := hiveIdent(v.Key)
			if err != nil {
				return "", apperr.Wrap(apperr.KindConfiguration, op, err)
			}
			if strings.ContainsAny(v.Value, `'\`) {
				return "", apperr.New(apperr.KindConfiguration, op, "partition value %q contains a quote or backslash", v.Value)
			}
			specs[i] = key + " = '" + v.Value + "'"
		}
		b.WriteString("\n  PARTITION (" + strings.Join(specs, ", ") + ")")
	}
	return b.String(), nil
}

func hiveIdent(name string) (string, error) {
	if name == "" || strings.Contains(name, "`") {
		return "", fmt.Errorf("invalid identifier %q", name)
	}
	return "`" + name + "`", nil
}
