package models

import "sort"

// ColumnDescriptor describes a single column as produced by the external
// schema loader. Immutable input to classification.
type ColumnDescriptor struct {
	SchemaName string `json:"schema_name,omitempty"`
	TableName  string `json:"table_name"`
	ColumnName string `json:"column_name"`
	DataType   string `json:"data_type"`
	IsNullable bool   `json:"is_nullable"`
	MaxLength  int    `json:"max_length,omitempty"`
}

// SchemaSet is the loader contract shape: table name to its columns.
type SchemaSet map[string][]ColumnDescriptor

// FieldCount returns the total number of columns across all tables.
func (s SchemaSet) FieldCount() int {
	total := 0
	for _, cols := range s {
		total += len(cols)
	}
	return total
}

// TableNames returns the table names in sorted order for deterministic
// iteration.
func (s SchemaSet) TableNames() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
