package matcher

import (
	_ "embed"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/veilcheck-inc/veilcheck-engine/pkg/models"
)

//go:embed patterns.yaml
var defaultPatternsYAML []byte

// Library is the immutable pattern library shared by all sessions.
// Safe for concurrent use without locking after construction.
type Library struct {
	exact    map[string]*models.SensitivityPattern // normalized value -> pattern
	fuzzy    []*models.SensitivityPattern          // exact + fuzzy kinds, fuzzy candidates
	regex    []*compiledPattern
	contexts []*models.SensitivityPattern
	all      []*models.SensitivityPattern
}

type compiledPattern struct {
	pattern *models.SensitivityPattern
	re      *regexp.Regexp
}

type patternsFile struct {
	Patterns []models.SensitivityPattern `yaml:"patterns"`
}

// DefaultLibrary loads the embedded pattern library.
func DefaultLibrary() (*Library, error) {
	return LoadLibrary(defaultPatternsYAML)
}

// LoadLibrary parses a YAML pattern definition document and compiles it
// into an immutable library.
func LoadLibrary(data []byte) (*Library, error) {
	var file patternsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse pattern library: %w", err)
	}
	if len(file.Patterns) == 0 {
		return nil, fmt.Errorf("pattern library is empty")
	}

	patterns := make([]*models.SensitivityPattern, len(file.Patterns))
	for i := range file.Patterns {
		patterns[i] = &file.Patterns[i]
	}
	return NewLibrary(patterns)
}

// NewLibrary compiles a set of sensitivity patterns.
func NewLibrary(patterns []*models.SensitivityPattern) (*Library, error) {
	lib := &Library{
		exact: make(map[string]*models.SensitivityPattern),
	}

	for _, p := range patterns {
		if p.ID == "" || p.Value == "" {
			return nil, fmt.Errorf("pattern missing id or value: %+v", p)
		}
		if p.Confidence < 0 || p.Confidence > 1 {
			return nil, fmt.Errorf("pattern %s: confidence %v out of range", p.ID, p.Confidence)
		}

		switch p.Kind {
		case models.MatchExact:
			key := NormalizeFieldName(p.Value)
			if existing, ok := lib.exact[key]; ok {
				return nil, fmt.Errorf("patterns %s and %s collide on value %q", existing.ID, p.ID, key)
			}
			lib.exact[key] = p
			lib.fuzzy = append(lib.fuzzy, p)
		case models.MatchFuzzy:
			lib.fuzzy = append(lib.fuzzy, p)
		case models.MatchRegex:
			re, err := regexp.Compile(p.Value)
			if err != nil {
				return nil, fmt.Errorf("pattern %s: invalid regex: %w", p.ID, err)
			}
			lib.regex = append(lib.regex, &compiledPattern{pattern: p, re: re})
		case models.MatchContext:
			lib.contexts = append(lib.contexts, p)
		default:
			return nil, fmt.Errorf("pattern %s: unknown kind %q", p.ID, p.Kind)
		}
		lib.all = append(lib.all, p)
	}

	return lib, nil
}

// Len returns the number of patterns in the library.
func (l *Library) Len() int {
	return len(l.all)
}

// ExactLookup returns the pattern whose normalized value equals key.
func (l *Library) ExactLookup(key string) (*models.SensitivityPattern, bool) {
	p, ok := l.exact[key]
	return p, ok
}
