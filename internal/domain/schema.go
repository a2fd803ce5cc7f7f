package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ColumnInfo contains column metadata from information_schema.
type ColumnInfo struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
	Default  string `json:"default,omitempty"`
}

// TableSchema contains the ordered columns of one table.
type TableSchema struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

// SchemaDescription is a prompt-ready snapshot of the analyst's core tables:
// column metadata, one sample row per table, and the fixed join relationships.
type SchemaDescription struct {
	Tables        []TableSchema             `json:"tables"`
	Samples       map[string]map[string]any `json:"samples"`
	Relationships string                    `json:"relationships"`
}

// Empty reports whether introspection produced nothing usable.
func (d *SchemaDescription) Empty() bool {
	return d == nil || len(d.Tables) == 0
}

// PromptText renders the description as Markdown for LLM consumption:
// one column table per database table, sample rows as JSON, then the
// relationship descriptor.
func (d *SchemaDescription) PromptText() string {
	var b strings.Builder
	for _, t := range d.Tables {
		fmt.Fprintf(&b, "### 表 %s\n\n", t.Name)
		b.WriteString("| 字段 | 类型 | 可空 | 默认值 |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, c := range t.Columns {
			nullable := "NO"
			if c.Nullable {
				nullable = "YES"
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", c.Name, c.DataType, nullable, c.Default)
		}
		if sample, ok := d.Samples[t.Name]; ok && len(sample) > 0 {
			data, err := json.Marshal(sample)
			if err == nil {
				fmt.Fprintf(&b, "\n示例数据: %s\n", data)
			}
		}
		b.WriteString("\n")
	}
	if d.Relationships != "" {
		fmt.Fprintf(&b, "表关系: %s\n", d.Relationships)
	}
	return b.String()
}
