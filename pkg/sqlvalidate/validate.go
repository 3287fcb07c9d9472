// Package sqlvalidate is the safety gate every generated query passes before it is returned or
// executed. It checks shape and a fixed verb denylist, not correctness.
package sqlvalidate

import (
	"fmt"
	"strings"
)

// Denylist holds the mutating verbs a generated query must never contain.
var Denylist = []string{"DROP", "DELETE", "TRUNCATE", "ALTER", "CREATE", "INSERT", "UPDATE"}

// Result is the outcome of validating a query.
type Result struct {
	Valid   bool
	Reasons []string
}

// Error returns the reasons joined into one message, or "" when valid.
func (r Result) Error() string {
	if r.Valid {
		return ""
	}
	return strings.Join(r.Reasons, "; ")
}

// IsValid reports whether sql passes validation.
func IsValid(sql string) bool {
	return Validate(sql).Valid
}

// Validate checks that sql is a non-empty SELECT ... FROM statement with no denylisted verb.
// Comments and the contents of single-quoted string literals are ignored, so a filter such as
// attributes['db.operation'] = 'INSERT' is accepted. Quoted identifiers are still checked.
func Validate(sql string) Result {
	body := strings.TrimSpace(StripComments(sql))
	if body == "" {
		return Result{Reasons: []string{"query is empty"}}
	}

	tokens := keywordTokens(body)

	var reasons []string
	if _, ok := tokens["SELECT"]; !ok {
		reasons = append(reasons, "missing SELECT")
	}
	if _, ok := tokens["FROM"]; !ok {
		reasons = append(reasons, "missing FROM")
	}
	for _, verb := range Denylist {
		if _, ok := tokens[verb]; ok {
			reasons = append(reasons, fmt.Sprintf("forbidden operation %s", verb))
		}
	}
	return Result{Valid: len(reasons) == 0, Reasons: reasons}
}

// ForbiddenVerbs returns the denylisted verbs present in sql, in denylist order.
func ForbiddenVerbs(sql string) []string {
	tokens := keywordTokens(StripComments(sql))
	var found []string
	for _, verb := range Denylist {
		if _, ok := tokens[verb]; ok {
			found = append(found, verb)
		}
	}
	return found
}

// keywordTokens returns the upper-cased word tokens of sql outside string literals. sql must
// already be free of comments.
func keywordTokens(sql string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range Tokens(StripLiterals(sql)) {
		tokens[strings.ToUpper(tok)] = struct{}{}
	}
	return tokens
}

// Tokens splits s into word tokens made of letters, digits and underscores.
func Tokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !isWordRune(r)
	})
}

func isWordRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
