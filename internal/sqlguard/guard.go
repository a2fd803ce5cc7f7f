package sqlguard

import (
	"fmt"
	"regexp"
	"strings"
)

// Forbidden statement keywords; matched as plain substrings of the
// upper-cased query so that no spelling slips through a word boundary trick.
var forbiddenKeywords = []string{
	"INSERT",
	"UPDATE",
	"DELETE",
	"DROP",
	"ALTER",
	"CREATE",
	"TRUNCATE",
}

// PostgreSQL-specific blocked patterns, defence-in-depth on top of the
// keyword list.
var postgresBlockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)pg_read_file`),
	regexp.MustCompile(`(?i)pg_write_file`),
	regexp.MustCompile(`(?i)pg_ls_dir`),
	regexp.MustCompile(`(?i)lo_import`),
	regexp.MustCompile(`(?i)lo_export`),
	regexp.MustCompile(`(?i)\bCOPY\b`),
	regexp.MustCompile(`(?i)dblink`),
	regexp.MustCompile(`(?i)\bGRANT\b`),
	regexp.MustCompile(`(?i)\bREVOKE\b`),
}

var tableRefPattern = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([a-zA-Z_][a-zA-Z0-9_]*)`)

// Word-boundary match so identifiers like delimited_x do not count as a
// LIMIT clause.
var limitPattern = regexp.MustCompile(`(?i)\bLIMIT\b`)

// Validate rejects anything that is not a plain SELECT. The executor re-checks
// the SELECT prefix independently before submission.
func Validate(sql string) error {
	sql = strings.TrimSpace(sql)
	if sql == "" {
		return fmt.Errorf("empty SQL query")
	}

	normalized := strings.ToUpper(sql)
	if !strings.HasPrefix(normalized, "SELECT") {
		return fmt.Errorf("only SELECT statements allowed")
	}

	for _, kw := range forbiddenKeywords {
		if strings.Contains(normalized, kw) {
			return fmt.Errorf("forbidden keyword detected: %s", kw)
		}
	}

	for _, pattern := range postgresBlockedPatterns {
		if pattern.MatchString(sql) {
			return fmt.Errorf("blocked SQL pattern detected")
		}
	}

	return nil
}

// IsSelect reports whether the trimmed query starts with SELECT.
func IsSelect(sql string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sql)), "SELECT")
}

// EnforceLimit ensures the query has a LIMIT clause
func EnforceLimit(sql string, maxRows int) string {
	if limitPattern.MatchString(sql) {
		return sql
	}

	sql = strings.TrimSuffix(strings.TrimSpace(sql), ";")

	return fmt.Sprintf("%s LIMIT %d", sql, maxRows)
}

// TablesUsed returns the distinct identifiers referenced after FROM or JOIN,
// in order of first appearance.
func TablesUsed(sql string) []string {
	var tables []string
	seen := make(map[string]bool)
	for _, match := range tableRefPattern.FindAllStringSubmatch(sql, -1) {
		name := strings.ToLower(match[1])
		if !seen[name] {
			seen[name] = true
			tables = append(tables, name)
		}
	}
	return tables
}
