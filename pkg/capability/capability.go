// Package capability classifies model identifiers into capability classes and holds the
// per-class generation profile.
package capability

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Class is the capability class of a model.
type Class string

const (
	// SQLSpecialized models emit raw SQL.
	SQLSpecialized Class = "sql-specialized"
	// GeneralPurpose models are asked for a structured JSON response.
	GeneralPurpose Class = "general-purpose"
)

// ResponseShape is the encoding a class of model is asked to answer in.
type ResponseShape string

const (
	ShapeRawSQL ResponseShape = "raw_sql"
	ShapeJSON   ResponseShape = "json"
)

// Profile is the per-class generation configuration.
type Profile struct {
	MaxTokens     int64
	Temperature   float64
	ResponseShape ResponseShape
}

var profiles = map[Class]Profile{
	SQLSpecialized: {MaxTokens: 1024, Temperature: 0, ResponseShape: ShapeRawSQL},
	GeneralPurpose: {MaxTokens: 4096, Temperature: 0, ResponseShape: ShapeJSON},
}

// ProfileFor returns the profile of a class. Unknown classes get the general-purpose profile.
func ProfileFor(c Class) Profile {
	if p, ok := profiles[c]; ok {
		return p
	}
	return profiles[GeneralPurpose]
}

// ParseClass parses a class name.
func ParseClass(s string) (Class, error) {
	switch Class(strings.ToLower(strings.TrimSpace(s))) {
	case SQLSpecialized:
		return SQLSpecialized, nil
	case GeneralPurpose:
		return GeneralPurpose, nil
	}
	return "", fmt.Errorf("unknown capability class %q", s)
}

// Rule maps a case-insensitive substring of a model identifier to a class.
type Rule struct {
	Pattern string `yaml:"pattern"`
	Class   Class  `yaml:"class"`
}

// DefaultRules are the built-in sql-specialized model families.
var DefaultRules = []Rule{
	{Pattern: "sqlcoder", Class: SQLSpecialized},
	{Pattern: "codellama", Class: SQLSpecialized},
	{Pattern: "starcoder", Class: SQLSpecialized},
	{Pattern: "deepseek-coder", Class: SQLSpecialized},
	{Pattern: "duckdb-nsql", Class: SQLSpecialized},
	{Pattern: "nsql", Class: SQLSpecialized},
	{Pattern: "text2sql", Class: SQLSpecialized},
}

// Registry resolves model identifiers against an ordered rule list. The first matching rule wins
// and models matching no rule are general-purpose.
type Registry struct {
	rules []Rule
}

// NewRegistry builds a registry from extra rules, which take precedence over the defaults.
func NewRegistry(extra ...Rule) *Registry {
	rules := make([]Rule, 0, len(extra)+len(DefaultRules))
	for _, r := range extra {
		r.Pattern = strings.ToLower(strings.TrimSpace(r.Pattern))
		if r.Pattern == "" {
			continue
		}
		rules = append(rules, r)
	}
	rules = append(rules, DefaultRules...)
	return &Registry{rules: rules}
}

// Resolve returns the capability class of a model.
func (r *Registry) Resolve(model string) Class {
	m := strings.ToLower(model)
	for _, rule := range r.rules {
		if strings.Contains(m, rule.Pattern) {
			return rule.Class
		}
	}
	return GeneralPurpose
}

// Rules returns a copy of the rules in match order.
func (r *Registry) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

type rulesFile struct {
	Models []Rule `yaml:"models"`
}

// LoadRules reads override rules from a YAML file of the form:
//
//	models:
//	  - pattern: my-sql-model
//	    class: sql-specialized
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read models file: %w", err)
	}
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse models file: %w", err)
	}
	for i, r := range f.Models {
		if strings.TrimSpace(r.Pattern) == "" {
			return nil, fmt.Errorf("models file entry %d has an empty pattern", i)
		}
		c, err := ParseClass(string(r.Class))
		if err != nil {
			return nil, fmt.Errorf("models file entry %d: %w", i, err)
		}
		f.Models[i].Class = c
	}
	return f.Models, nil
}
