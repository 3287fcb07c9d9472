package criticalpath

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Entry is one critical path together with the goals to generate queries for.
type Entry struct {
	CriticalPath `yaml:",inline"`
	Goals        []AnalysisGoal `yaml:"goals"`
}

type fileFormat struct {
	Paths []Entry `yaml:"paths"`
}

// LoadFile reads critical paths and their goals from a YAML file.
func LoadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read critical paths file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates critical path entries from YAML.
func Parse(data []byte) ([]Entry, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse critical paths: %w", err)
	}
	if len(f.Paths) == 0 {
		return nil, fmt.Errorf("no critical paths defined")
	}
	seen := make(map[string]struct{}, len(f.Paths))
	for i := range f.Paths {
		e := &f.Paths[i]
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if _, ok := seen[e.ID]; ok {
			return nil, fmt.Errorf("duplicate critical path id %q", e.ID)
		}
		seen[e.ID] = struct{}{}
		if len(e.Goals) == 0 {
			e.Goals = []AnalysisGoal{{Type: GoalLatency}}
		}
		for j := range e.Goals {
			e.Goals[j].Type = e.Goals[j].Kind()
		}
	}
	return f.Paths, nil
}
