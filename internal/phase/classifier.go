package phase

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fentz26/taskgrid/internal/models"
)

type compiledRule struct {
	TypeRule
	patterns []*regexp.Regexp
}

// Classifier scores tasks against a compiled rule table. It holds no mutable
// state and is safe for concurrent use.
type Classifier struct {
	weights   Weights
	ambiguity Ambiguity
	rules     []compiledRule
}

// Classification is the detailed result of scoring one task.
type Classification struct {
	Type       models.TaskType
	Confidence float64
	Scores     map[models.TaskType]float64
}

// NewClassifier compiles rules into a classifier.
func NewClassifier(rules Rules) (*Classifier, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	c := &Classifier{weights: rules.Weights, ambiguity: rules.Ambiguity}
	for _, tr := range rules.Types {
		cr := compiledRule{TypeRule: tr}
		for _, p := range tr.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("compile pattern %q for %s: %w", p, tr.Type, err)
			}
			cr.patterns = append(cr.patterns, re)
		}
		c.rules = append(c.rules, cr)
	}
	return c, nil
}

// MustDefaultClassifier returns a classifier over DefaultRules.
func MustDefaultClassifier() *Classifier {
	c, err := NewClassifier(DefaultRules())
	if err != nil {
		panic(err)
	}
	return c
}

// ClassifyType returns the most likely type for a task and a confidence in [0,1].
func (c *Classifier) ClassifyType(t *models.Task) (models.TaskType, float64) {
	res := c.Classify(t.Name, t.Description, t.Labels)
	return res.Type, res.Confidence
}

// Classify scores name, description and labels against every type rule.
func (c *Classifier) Classify(name, description string, labels []string) Classification {
	name = strings.ToLower(strings.TrimSpace(name))
	text := name + " " + strings.ToLower(description)

	labelSet := make(map[string]bool, len(labels))
	for _, l := range labels {
		labelSet[strings.ToLower(strings.TrimSpace(l))] = true
	}

	scores := make(map[models.TaskType]float64, len(c.rules))
	for _, r := range c.rules {
		scores[r.Type] = c.score(r, name, text, labelSet)
	}

	if c.ambiguity.Enabled {
		design, impl := scores[models.TaskTypeDesign], scores[models.TaskTypeImplementation]
		if design > 0 && impl > 0 && withinRatio(design, impl, c.ambiguity.Ratio) && c.designLeaning(name) {
			scores[models.TaskTypeDesign] = design * c.ambiguity.Bias
		}
	}

	res := Classification{Type: models.TaskTypeOther, Scores: scores}
	var best, total float64
	for _, r := range c.rules {
		s := scores[r.Type]
		total += s
		if s > best {
			best = s
			res.Type = r.Type
		}
	}
	if best < c.weights.MinScore {
		res.Type = models.TaskTypeOther
		return res
	}

	confidence := best / c.weights.ConfidenceScale
	if total > 0 {
		confidence *= 0.5 + best/total
	}
	res.Confidence = clamp(confidence, 0, 1)
	return res
}

func (c *Classifier) score(r compiledRule, name, text string, labels map[string]bool) float64 {
	w := c.weights
	var score float64
	add := func(keywords []string, weight float64) {
		for _, kw := range keywords {
			idx := wordIndex(text, strings.ToLower(kw))
			if idx < 0 {
				continue
			}
			if idx < len(name) && idx < w.PositionWindow {
				score += weight * w.PositionBonus
			} else {
				score += weight
			}
		}
	}
	add(r.Primary, w.Primary)
	add(r.Secondary, w.Secondary)
	add(r.Verbs, w.Verb)

	for _, l := range r.Labels {
		if labels[strings.ToLower(l)] {
			score += w.Label
		}
	}
	for _, re := range r.patterns {
		if re.MatchString(text) {
			score += w.Pattern
		}
	}
	return score
}

func (c *Classifier) designLeaning(name string) bool {
	for _, kw := range c.ambiguity.DesignLeaning {
		if wordIndex(name, strings.ToLower(kw)) >= 0 {
			return true
		}
	}
	return false
}

// wordIndex returns the byte offset of the first whole-word occurrence of
// keyword in text, or -1. Multi-word keywords match as plain substrings.
func wordIndex(text, keyword string) int {
	if keyword == "" {
		return -1
	}
	if strings.Contains(keyword, " ") {
		return strings.Index(text, keyword)
	}
	offset := 0
	for {
		i := strings.Index(text[offset:], keyword)
		if i < 0 {
			return -1
		}
		start := offset + i
		end := start + len(keyword)
		if (start == 0 || !isWordByte(text[start-1])) && (end == len(text) || !isWordByte(text[end])) {
			return start
		}
		offset = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

func withinRatio(a, b, ratio float64) bool {
	hi, lo := a, b
	if lo > hi {
		hi, lo = lo, hi
	}
	return hi/lo <= ratio
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
