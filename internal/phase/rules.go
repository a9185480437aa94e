// Package phase classifies tasks into lifecycle phases and derives the
// design → implementation → testing → documentation dependency edges.
package phase

import (
	"fmt"
	"os"

	"github.com/fentz26/taskgrid/internal/models"
	"gopkg.in/yaml.v3"
)

// Weights holds the scoring weights applied by the classifier.
type Weights struct {
	Primary   float64 `yaml:"primary"`
	Secondary float64 `yaml:"secondary"`
	Verb      float64 `yaml:"verb"`
	Label     float64 `yaml:"label"`
	Pattern   float64 `yaml:"pattern"`
	// PositionBonus multiplies a keyword hit inside the first PositionWindow
	// characters of the task name.
	PositionBonus  float64 `yaml:"position_bonus"`
	PositionWindow int     `yaml:"position_window"`
	// ConfidenceScale is the score that maps to full confidence.
	ConfidenceScale float64 `yaml:"confidence_scale"`
	// MinScore is the best score below which a task is classified as other.
	MinScore float64 `yaml:"min_score"`
}

// TypeRule is the keyword table for one task type.
type TypeRule struct {
	Type      models.TaskType `yaml:"type"`
	Primary   []string        `yaml:"primary"`
	Secondary []string        `yaml:"secondary"`
	Verbs     []string        `yaml:"verbs"`
	Labels    []string        `yaml:"labels"`
	Patterns  []string        `yaml:"patterns"`
}

// Ambiguity tunes the design-versus-implementation nudge. It is a heuristic:
// when both scores are within Ratio of each other and the task name contains
// one of the DesignLeaning keywords, the design score is multiplied by Bias.
type Ambiguity struct {
	Enabled       bool     `yaml:"enabled"`
	Ratio         float64  `yaml:"ratio"`
	Bias          float64  `yaml:"bias"`
	DesignLeaning []string `yaml:"design_leaning"`
}

// Rules is the immutable rule table a Classifier is compiled from.
type Rules struct {
	Weights   Weights    `yaml:"weights"`
	Types     []TypeRule `yaml:"types"`
	Ambiguity Ambiguity  `yaml:"ambiguity"`
}

// DefaultRules returns the built-in keyword tables.
func DefaultRules() Rules {
	return Rules{
		Weights: Weights{
			Primary:         2.0,
			Secondary:       1.0,
			Verb:            1.5,
			Label:           4.0,
			Pattern:         3.0,
			PositionBonus:   1.5,
			PositionWindow:  10,
			ConfidenceScale: 5.0,
			MinScore:        1.0,
		},
		Ambiguity: Ambiguity{
			Enabled:       true,
			Ratio:         2.5,
			Bias:          2.0,
			DesignLeaning: []string{"design", "architecture", "architect", "plan", "wireframe", "mockup", "spec", "schema", "prototype", "blueprint"},
		},
		Types: []TypeRule{
			{
				Type:      models.TaskTypeDesign,
				Primary:   []string{"design", "architecture", "wireframe", "mockup", "prototype", "specification", "blueprint"},
				Secondary: []string{"plan", "planning", "diagram", "ux", "layout", "schema", "requirements", "research"},
				Verbs:     []string{"architect", "sketch", "outline", "draft"},
				Labels:    []string{"design", "architecture", "ux"},
				Patterns:  []string{`\b(system|api|data|database)\s+design\b`, `\bdesign\s+(doc|document|review)\b`},
			},
			{
				Type:      models.TaskTypeImplementation,
				Primary:   []string{"implement", "implementation", "build", "develop", "feature", "endpoint"},
				Secondary: []string{"api", "service", "backend", "frontend", "component", "function", "logic", "module", "handler"},
				Verbs:     []string{"code", "create", "add", "integrate", "refactor", "wire"},
				Labels:    []string{"implementation", "feature", "backend", "frontend"},
				Patterns:  []string{`\b(implement|build|develop)\s+(the\s+|a\s+)?\w+`, `\badd\s+support\s+for\b`},
			},
			{
				Type:      models.TaskTypeTesting,
				Primary:   []string{"test", "tests", "testing", "qa"},
				Secondary: []string{"unit", "integration", "e2e", "coverage", "regression", "assertions"},
				Verbs:     []string{"verify", "validate", "check"},
				Labels:    []string{"testing", "test", "qa"},
				Patterns:  []string{`\b(unit|integration|e2e|end-to-end|load)\s+tests?\b`, `\btest\s+(suite|plan|cases?)\b`},
			},
			{
				Type:      models.TaskTypeDocumentation,
				Primary:   []string{"documentation", "docs", "readme", "guide", "manual"},
				Secondary: []string{"tutorial", "wiki", "changelog", "reference", "howto"},
				Verbs:     []string{"document", "describe", "explain"},
				Labels:    []string{"documentation", "docs"},
				Patterns:  []string{`\b(api|user|developer)\s+(docs|documentation|guide)\b`},
			},
			{
				Type:      models.TaskTypeDeployment,
				Primary:   []string{"deploy", "deployment", "release", "rollout"},
				Secondary: []string{"production", "staging", "pipeline", "launch"},
				Verbs:     []string{"ship", "publish"},
				Labels:    []string{"deployment", "release"},
				Patterns:  []string{`\bdeploy(ment)?\s+to\s+\w+`, `\bci\s*/\s*cd\b`},
			},
			{
				Type:      models.TaskTypeInfrastructure,
				Primary:   []string{"infrastructure", "infra", "provision", "environment"},
				Secondary: []string{"docker", "kubernetes", "k8s", "terraform", "cluster", "monitoring", "server"},
				Verbs:     []string{"setup", "configure", "install"},
				Labels:    []string{"infrastructure", "infra", "devops"},
				Patterns:  []string{`\bset\s*up\s+(the\s+)?(environment|database|server|cluster)\b`},
			},
		},
	}
}

// Validate checks the rule table for values the classifier cannot use.
func (r Rules) Validate() error {
	if r.Weights.ConfidenceScale <= 0 {
		return fmt.Errorf("weights.confidence_scale must be positive")
	}
	if r.Weights.PositionBonus < 1 {
		return fmt.Errorf("weights.position_bonus must be at least 1")
	}
	if r.Ambiguity.Enabled && r.Ambiguity.Ratio < 1 {
		return fmt.Errorf("ambiguity.ratio must be at least 1")
	}
	seen := make(map[models.TaskType]bool)
	for _, tr := range r.Types {
		if _, ok := models.ParseTaskType(string(tr.Type)); !ok {
			return fmt.Errorf("unknown task type %q in rules", tr.Type)
		}
		if seen[tr.Type] {
			return fmt.Errorf("task type %q declared twice", tr.Type)
		}
		seen[tr.Type] = true
	}
	return nil
}

// LoadRules reads a rule table from a YAML file. Fields missing from the
// file keep their default values; a missing file yields DefaultRules.
func LoadRules(path string) (Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRules(), nil
		}
		return Rules{}, fmt.Errorf("reading rules file: %w", err)
	}

	rules := DefaultRules()
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("parsing rules file: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, fmt.Errorf("invalid rules: %w", err)
	}
	return rules, nil
}
