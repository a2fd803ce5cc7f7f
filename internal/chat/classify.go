package chat

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// RequestKind is the routing decision for an inbound message.
type RequestKind int

const (
	KindNormalChat RequestKind = iota
	KindDataAnalysis
	KindSchemaIntro
)

// Classifier holds the keyword tables driving request routing. The defaults
// match the stock deployment; operators can extend the lists per deployment.
type Classifier struct {
	// Markers switch a message into the SQL pipeline. Matched
	// case-insensitively with any spacing around them.
	Markers []string
	// SchemaKeywords mark a data-analysis message as a schema question.
	SchemaKeywords []string
	// HelpWords mark a short message as a help-like utterance.
	HelpWords []string
	// FollowUpWords signal a reference to previously returned data.
	FollowUpWords []string
	// HelpLengthLimit: a help-like data-analysis message shorter than this is
	// answered with the schema introduction.
	HelpLengthLimit int
}

// DefaultClassifier returns the stock keyword tables.
func DefaultClassifier() *Classifier {
	return &Classifier{
		Markers: []string{"#psql", "#psq"},
		SchemaKeywords: []string{
			"数据库", "表", "字段", "结构",
			"database", "schema", "table", "field", "columns", "structure",
		},
		HelpWords: []string{
			"你好", "帮助", "介绍", "能做什么", "怎么用", "如何使用",
			"help", "hello", "hi",
		},
		FollowUpWords:   []string{"上面", "刚才", "之前", "这些数据", "那些数据", "上述"},
		HelpLengthLimit: 20,
	}
}

// IsDataAnalysis reports whether the message (or its declared type) selects
// the SQL pipeline.
func (c *Classifier) IsDataAnalysis(message, messageType string) bool {
	if messageType == "data_analysis" {
		return true
	}
	lower := strings.ToLower(message)
	for _, marker := range c.Markers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// markerPattern matches any marker case-insensitively. Matching on the
// original string keeps byte offsets honest; ToLower can change rune widths.
func (c *Classifier) markerPattern() *regexp.Regexp {
	parts := make([]string, len(c.Markers))
	for i, m := range c.Markers {
		parts[i] = regexp.QuoteMeta(m)
	}
	return regexp.MustCompile("(?i)" + strings.Join(parts, "|"))
}

// Clean strips the markers and surrounding whitespace from the message.
func (c *Classifier) Clean(message string) string {
	if len(c.Markers) == 0 {
		return strings.TrimSpace(message)
	}
	return strings.TrimSpace(c.markerPattern().ReplaceAllString(message, ""))
}

// IsSchemaIntro reports whether a cleaned data-analysis message asks about
// the database itself rather than the data.
func (c *Classifier) IsSchemaIntro(cleaned string) bool {
	lower := strings.ToLower(cleaned)
	for _, kw := range c.SchemaKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	if cleaned == "" {
		return true
	}
	if utf8.RuneCountInString(cleaned) < c.HelpLengthLimit {
		for _, w := range c.HelpWords {
			if strings.Contains(lower, w) {
				return true
			}
		}
	}
	return false
}

// Classify routes a message.
func (c *Classifier) Classify(message, messageType string) RequestKind {
	if !c.IsDataAnalysis(message, messageType) {
		return KindNormalChat
	}
	if c.IsSchemaIntro(c.Clean(message)) {
		return KindSchemaIntro
	}
	return KindDataAnalysis
}

// ReferencesPriorData reports whether the message points back at earlier
// results.
func (c *Classifier) ReferencesPriorData(message string) bool {
	for _, w := range c.FollowUpWords {
		if strings.Contains(message, w) {
			return true
		}
	}
	return false
}
