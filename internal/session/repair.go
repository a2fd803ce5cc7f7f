package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/wenqu/procurement-assistant/internal/domain"
)

// fileSession mirrors the persisted layout; older writers used a messages
// field instead of conversation_history.
type fileSession struct {
	domain.Session
	Messages []domain.Message `json:"messages,omitempty"`
}

func parseSession(data []byte) (*domain.Session, error) {
	var fs fileSession
	if err := json.Unmarshal(data, &fs); err != nil {
		return nil, err
	}
	sess := fs.Session
	if len(sess.ConversationHistory) == 0 && len(fs.Messages) > 0 {
		sess.ConversationHistory = fs.Messages
	}
	if sess.ConversationHistory == nil {
		sess.ConversationHistory = []domain.Message{}
	}
	sess.Normalize()
	return &sess, nil
}

// loadFromDisk reads and parses the session file for id, healing malformed
// JSON where possible. The repair strategies are tried in order; if all fail
// the corrupt file is renamed with a .bak suffix and nil is returned so the
// caller starts a fresh session. This function never panics or propagates a
// parse failure.
func (s *Store) loadFromDisk(id string) (*domain.Session, string) {
	path := s.findExisting(id)
	if path == "" {
		return nil, ""
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to read session file")
		return nil, path
	}

	sess, parseErr := parseSession(data)
	if parseErr == nil {
		return sess, path
	}

	log.Warn().Err(parseErr).Str("path", path).Msg("malformed session file, attempting repair")

	type strategy struct {
		name string
		run  func() (*domain.Session, bool)
	}
	strategies := []strategy{
		{"balanced-bracket scan", func() (*domain.Session, bool) { return repairBalancedScan(data) }},
		{"line truncation", func() (*domain.Session, bool) { return repairLineTruncate(data, parseErr) }},
		{"last complete object", func() (*domain.Session, bool) { return repairLastObject(data) }},
	}
	for _, st := range strategies {
		if repaired, ok := st.run(); ok {
			log.Info().Str("path", path).Str("strategy", st.name).Msg("session file repaired")
			return repaired, path
		}
	}

	// The original is renamed, never deleted.
	backup := path + ".bak"
	if err := os.Rename(path, backup); err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to back up corrupt session file")
	} else {
		log.Warn().Str("path", path).Str("backup", backup).Msg("session file unrecoverable, backed up and reset")
	}
	return nil, path
}

// repairBalancedScan walks the bytes tracking string and escape state and
// truncates at the last position where every brace and bracket balances.
func repairBalancedScan(data []byte) (*domain.Session, bool) {
	inString := false
	escaped := false
	depth := 0
	started := false
	lastBalanced := -1

	for i, b := range data {
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			inString = true
		case '{', '[':
			depth++
			started = true
		case '}', ']':
			depth--
			if started && depth == 0 {
				lastBalanced = i + 1
			}
		}
	}

	if lastBalanced <= 0 {
		return nil, false
	}

	sess, err := parseSession(data[:lastBalanced])
	if err != nil {
		return nil, false
	}
	return sess, true
}

// repairLineTruncate uses the parser's error offset to drop the failing line
// and everything after it, then closes the document with a brace.
func repairLineTruncate(data []byte, parseErr error) (*domain.Session, bool) {
	var syntaxErr *json.SyntaxError
	if !errors.As(parseErr, &syntaxErr) {
		return nil, false
	}

	offset := int(syntaxErr.Offset)
	if offset > len(data) {
		offset = len(data)
	}
	lineStart := bytes.LastIndexByte(data[:offset], '\n')
	if lineStart <= 0 {
		return nil, false
	}

	truncated := bytes.TrimRight(data[:lineStart], " \t\r\n")
	truncated = bytes.TrimSuffix(truncated, []byte(","))
	candidate := append(append([]byte{}, truncated...), []byte("\n}")...)

	sess, err := parseSession(candidate)
	if err != nil {
		return nil, false
	}
	return sess, true
}

// repairLastObject extracts the last complete top-level {…} or […] span in
// the file.
func repairLastObject(data []byte) (*domain.Session, bool) {
	inString := false
	escaped := false
	depth := 0
	spanStart := -1
	lastStart, lastEnd := -1, -1

	for i, b := range data {
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			inString = true
		case '{', '[':
			if depth == 0 {
				spanStart = i
			}
			depth++
		case '}', ']':
			depth--
			if depth == 0 && spanStart >= 0 {
				lastStart, lastEnd = spanStart, i+1
			}
		}
	}

	if lastStart < 0 {
		return nil, false
	}

	sess, err := parseSession(data[lastStart:lastEnd])
	if err != nil {
		return nil, false
	}
	return sess, true
}
