package awstools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	gluetypes "github.com/aws/aws-sdk-go-v2/service/glue/types"
)

type TableSchema struct {
	Database   string   `json:"database"`
	Table      string   `json:"table"`
	Location   string   `json:"location,omitempty"`
	Columns    []Column `json:"columns"`
	Partitions []Column `json:"partitions"`
}

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func GetTableSchema(ctx context.Context, c GlueClient, database, table string) (*TableSchema, error) {
	out, err := c.GetTable(ctx, &glue.GetTableInput{
		DatabaseName: aws.String(database),
		Name:         aws.String(table),
	})
	if err != nil {
		return nil, fmt.Errorf("glue GetTable %s.%s: %w", database, table, err)
	}
	if out.Table == nil {
		return nil, fmt.Errorf("glue GetTable %s.%s: empty table", database, table)
	}

	ti := out.Table
	schema := &TableSchema{
		Database:   database,
		Table:      aws.ToString(ti.Name),
		Columns:    []Column{},
		Partitions: []Column{},
	}
	if sd := ti.StorageDescriptor; sd != nil {
		schema.Location = aws.ToString(sd.Location)
		for _, col := range sd.Columns {
			schema.Columns = append(schema.Columns, toColumn(col))
		}
	}
	for _, p := range ti.PartitionKeys {
		schema.Partitions = append(schema.Partitions, toColumn(p))
	}

	sort.Slice(schema.Columns, func(i, j int) bool { return schema.Columns[i].Name < schema.Columns[j].Name })
	sort.Slice(schema.Partitions, func(i, j int) bool { return schema.Partitions[i].Name < schema.Partitions[j].Name })
	return schema, nil
}

func toColumn(c gluetypes.Column) Column {
	return Column{Name: aws.ToString(c.Name), Type: strings.ToLower(strings.TrimSpace(aws.ToString(c.Type)))}
}

// CompactText renders the schema as DDL-like text, e.g.:
//
//	DATABASE ops
//	TABLE approval_audit (
//	  tool_name string
//	)
//	PARTITIONED BY (dt string)
func (s *TableSchema) CompactText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "DATABASE %s\n", s.Database)
	fmt.Fprintf(&b, "TABLE %s (\n", s.Table)
	for i, c := range s.Columns {
		comma := ","
		if i == len(s.Columns)-1 {
			comma = ""
		}
		fmt.Fprintf(&b, "  %s %s%s\n", c.Name, c.Type, comma)
	}
	b.WriteString(")\n")
	if len(s.Partitions) > 0 {
		parts := make([]string, 0, len(s.Partitions))
		for _, p := range s.Partitions {
			parts = append(parts, p.Name+" "+p.Type)
		}
		fmt.Fprintf(&b, "PARTITIONED BY (%s)\n", strings.Join(parts, ", "))
	}
	if s.Location != "" {
		fmt.Fprintf(&b, "LOCATION %s\n", s.Location)
	}
	return b.String()
}
