package domain

// Row is one materialized result row, field name to native value. Text cells
// that parsed as JSON hold the structured value instead.
type Row map[string]any

// QueryResult is an ordered result set with the column order preserved from
// the cursor.
type QueryResult struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// SynthResult is the outcome of SQL synthesis.
type SynthResult struct {
	SQL         string   `json:"sql"`
	Explanation string   `json:"explanation,omitempty"`
	TablesUsed  []string `json:"tables_used"`
}
