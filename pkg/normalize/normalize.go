// Package normalize turns raw model output into a candidate query plus its auxiliary fields.
//
// Model output is unreliable: fenced or unfenced, JSON or bare SQL, sometimes JSON nested inside
// JSON. Normalize runs an ordered chain of strategies and the first that yields non-empty SQL
// wins.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/malbeclabs/pathsql/pkg/capability"
)

// Placeholders filled in when the model answers with bare SQL.
const (
	RawSQLDescription = "Generated SQL query"
	RawSQLReasoning   = "Model returned SQL without structured reasoning"
)

const previewLen = 200

// Result is a normalized model response.
type Result struct {
	SQL             string            `json:"sql"`
	Description     string            `json:"description,omitempty"`
	ExpectedColumns map[string]string `json:"expectedColumns,omitempty"`
	Reasoning       string            `json:"reasoning,omitempty"`
}

// ResponseParseError reports a response from which no SQL could be recovered.
type ResponseParseError struct {
	Class   capability.Class
	Preview string
}

func (e *ResponseParseError) Error() string {
	if e.Preview == "" {
		return fmt.Sprintf("no SQL found in empty %s model response", e.Class)
	}
	return fmt.Sprintf("no SQL found in %s model response: %q", e.Class, e.Preview)
}

type strategy func(text string) (Result, bool)

// Normalize extracts SQL and auxiliary fields from raw model output.
func Normalize(raw string, class capability.Class) (Result, error) {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "{") {
		text = stripFences(text)
	}

	var chain []strategy
	if class == capability.SQLSpecialized {
		chain = []strategy{fromRawSQL}
	} else {
		chain = []strategy{fromJSON, fromEmbeddedObject, fromSQLField, fromSQLPrefix}
	}

	for _, s := range chain {
		res, ok := s(text)
		if !ok {
			continue
		}
		res = postProcess(res)
		if res.SQL != "" {
			return res, nil
		}
	}
	return Result{}, &ResponseParseError{Class: class, Preview: preview(raw)}
}

// Serialize encodes r as the JSON object a general-purpose model is asked to return.
func Serialize(r Result) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode response: %w", err)
	}
	return string(data), nil
}

// fromRawSQL treats the whole text as SQL.
func fromRawSQL(text string) (Result, bool) {
	if text == "" {
		return Result{}, false
	}
	return Result{SQL: text, Description: RawSQLDescription, Reasoning: RawSQLReasoning}, true
}

// fromJSON decodes text as a response object.
func fromJSON(text string) (Result, bool) {
	return decodeObject(text)
}

// fromEmbeddedObject decodes the first balanced object found in text.
func fromEmbeddedObject(text string) (Result, bool) {
	obj := firstObject(text)
	if obj == "" || obj == text {
		return Result{}, false
	}
	return decodeObject(obj)
}

// fromSQLPrefix accepts text that already reads as a query.
func fromSQLPrefix(text string) (Result, bool) {
	if !looksLikeSQL(text) {
		return Result{}, false
	}
	return fromRawSQL(text)
}

// postProcess cleans extracted SQL: a fence or a bare "sql" first line is dropped, and SQL that
// is itself an encoded response is unwrapped once.
func postProcess(r Result) Result {
	r.SQL = stripFences(r.SQL)
	r.SQL = stripSQLLabel(r.SQL)
	if strings.HasPrefix(r.SQL, "{") {
		if inner, ok := decodeObject(r.SQL); ok {
			inner.SQL = stripSQLLabel(stripFences(inner.SQL))
			if inner.SQL != "" {
				r = merge(inner, r)
			}
		}
	}
	if len(r.ExpectedColumns) == 0 {
		r.ExpectedColumns = nil
	}
	return r
}

// merge fills empty fields of primary from fallback. primary.SQL is always kept.
func merge(primary, fallback Result) Result {
	if primary.Description == "" || primary.Description == RawSQLDescription {
		primary.Description = fallback.Description
	}
	if primary.Reasoning == "" || primary.Reasoning == RawSQLReasoning {
		primary.Reasoning = fallback.Reasoning
	}
	if len(primary.ExpectedColumns) == 0 {
		primary.ExpectedColumns = fallback.ExpectedColumns
	}
	return primary
}

func stripSQLLabel(sql string) string {
	sql = strings.TrimSpace(sql)
	first, rest, found := strings.Cut(sql, "\n")
	if found && strings.EqualFold(strings.TrimSpace(first), "sql") {
		return strings.TrimSpace(rest)
	}
	return sql
}

func looksLikeSQL(text string) bool {
	upper := strings.ToUpper(strings.TrimSpace(text))
	for _, kw := range []string{"SELECT", "WITH"} {
		if strings.HasPrefix(upper, kw) && (len(upper) == len(kw) || !isWordByte(upper[len(kw)])) {
			return true
		}
	}
	return false
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}

func preview(raw string) string {
	raw = strings.TrimSpace(raw)
	r := []rune(raw)
	if len(r) > previewLen {
		return string(r[:previewLen]) + "..."
	}
	return raw
}
