package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	fenceRe    = regexp.MustCompile("(?s)```(?:[A-Za-z0-9_+-]*[ \t]*\r?\n)?(.*?)```")
	sqlFieldRe = regexp.MustCompile(`"sql"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// stripFences returns the content of the first fenced block in text, without its language tag.
// An opening fence with no closing fence is dropped together with its tag line.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(text, "```") {
		_, rest, found := strings.Cut(text, "\n")
		if !found {
			return strings.TrimSpace(strings.TrimLeft(text, "`"))
		}
		return strings.TrimSpace(rest)
	}
	return text
}

type payload struct {
	SQL             string          `json:"sql"`
	Description     string          `json:"description"`
	ExpectedColumns json.RawMessage `json:"expectedColumns"`
	Reasoning       string          `json:"reasoning"`
	Body            json.RawMessage `json:"body"`
}

type column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// decodeObject strictly decodes text as a response object, unwrapping one level of "body".
func decodeObject(text string) (Result, bool) {
	var p payload
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &p); err != nil {
		return Result{}, false
	}
	if strings.TrimSpace(p.SQL) == "" && len(p.Body) > 0 {
		body := p.Body
		var s string
		if err := json.Unmarshal(body, &s); err == nil {
			body = json.RawMessage(s)
		}
		var inner payload
		if err := json.Unmarshal(body, &inner); err != nil {
			return Result{}, false
		}
		p = inner
	}
	if strings.TrimSpace(p.SQL) == "" {
		return Result{}, false
	}
	return Result{
		SQL:             p.SQL,
		Description:     p.Description,
		ExpectedColumns: decodeColumns(p.ExpectedColumns),
		Reasoning:       p.Reasoning,
	}, true
}

// decodeColumns accepts either {"name": "type"} or [{"name": ..., "type": ...}].
func decodeColumns(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		out := make(map[string]string, len(obj))
		for k, v := range obj {
			if s, ok := v.(string); ok {
				out[k] = s
			} else if v != nil {
				out[k] = fmt.Sprint(v)
			}
		}
		return out
	}
	var list []column
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make(map[string]string, len(list))
		for _, c := range list {
			if c.Name != "" {
				out[c.Name] = c.Type
			}
		}
		return out
	}
	return nil
}

// fromSQLField extracts a "sql": "..." field from text that is not valid JSON as a whole.
func fromSQLField(text string) (Result, bool) {
	m := sqlFieldRe.FindStringSubmatch(text)
	if m == nil {
		return Result{}, false
	}
	var sql string
	if err := json.Unmarshal([]byte(`"`+m[1]+`"`), &sql); err != nil {
		sql = m[1]
	}
	if strings.TrimSpace(sql) == "" {
		return Result{}, false
	}
	return Result{SQL: sql}, true
}

// firstObject returns the first balanced {...} in text, honoring JSON string quoting.
func firstObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
