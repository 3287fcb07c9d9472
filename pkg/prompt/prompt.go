// Package prompt renders the prompts sent to the model gateway: first-draft generation, repair of
// a failed query, and the retry after an unparseable answer.
//
// Rendering is pure. Identical inputs give identical prompts.
package prompt

import (
	"embed"
	"strings"
	"text/template"

	"github.com/malbeclabs/pathsql/pkg/capability"
	"github.com/malbeclabs/pathsql/pkg/criticalpath"
)

//go:embed templates/*.md
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.md"))

// Option adjusts prompt rendering.
type Option func(*options)

type options struct {
	schema string
}

// WithSchema replaces the built-in table description, for example with one introspected from the
// database.
func WithSchema(schema string) Option {
	return func(o *options) {
		if s := strings.TrimSpace(schema); s != "" {
			o.schema = s
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{schema: DefaultSchema}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type generateData struct {
	SQLOnly         bool
	Goal            string
	GoalType        criticalpath.GoalType
	GoalDescription string
	PathName        string
	PathID          string
	Priority        criticalpath.Priority
	Start           string
	End             string
	Chain           string
	ServiceList     string
	Edges           []criticalpath.Edge
	Metrics         *criticalpath.PathMetrics
	Schema          string
	Examples        []Example
	ResponseSchema  string
}

// System returns the system prompt for a capability class.
func System(class capability.Class) string {
	return render("system.md", struct{ SQLOnly bool }{SQLOnly: class == capability.SQLSpecialized})
}

// Build renders the generation prompt for a path and goal. sql-specialized models get a compact
// prompt asking for SQL only. Other models get the full context and a JSON response contract.
func Build(path criticalpath.CriticalPath, goal criticalpath.AnalysisGoal, class capability.Class, opts ...Option) string {
	o := buildOptions(opts)
	data := newGenerateData(path, goal, o)
	if class == capability.SQLSpecialized {
		data.SQLOnly = true
		return render("generate_sql.md", data)
	}
	data.ResponseSchema = ResponseSchema()
	return render("generate_general.md", data)
}

// BuildParseRetry wraps the original prompt with a stricter instruction about the answer format.
func BuildParseRetry(original string, class capability.Class) string {
	return render("parse_retry.md", struct {
		SQLOnly  bool
		Original string
	}{SQLOnly: class == capability.SQLSpecialized, Original: original})
}

func newGenerateData(path criticalpath.CriticalPath, goal criticalpath.AnalysisGoal, o options) generateData {
	services := EscapeAll(path.Services)
	edges := make([]criticalpath.Edge, len(path.Edges))
	for i, e := range path.Edges {
		edges[i] = criticalpath.Edge{Source: Escape(e.Source), Target: Escape(e.Target)}
	}
	list := ServiceList(path.Services)
	return generateData{
		Goal:            goal.Summary(),
		GoalType:        goal.Kind(),
		GoalDescription: goal.Description,
		PathName:        path.DisplayName(),
		PathID:          path.ID,
		Priority:        path.Priority,
		Start:           Escape(path.Start()),
		End:             Escape(path.End()),
		Chain:           strings.Join(services, " -> "),
		ServiceList:     list,
		Edges:           edges,
		Metrics:         path.Metrics,
		Schema:          o.schema,
		Examples:        ExamplesFor(goal.Kind(), list),
	}
}

func render(name string, data any) string {
	var b strings.Builder
	// Only reachable on a template bug.
	if err := templates.ExecuteTemplate(&b, name, data); err != nil {
		panic("prompt: render " + name + ": " + err.Error())
	}
	return strings.TrimSpace(b.String()) + "\n"
}
