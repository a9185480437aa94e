// Package generator turns a requirements document into task drafts using
// Claude. The engine never interprets free text itself; this is the
// collaborator that does.
package generator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/fentz26/taskgrid/internal/models"
	"github.com/tidwall/gjson"
)

// ErrNoTasks is returned when the model output holds no usable task.
var ErrNoTasks = errors.New("no tasks in model output")

// Completer sends one prompt to a language model and returns its text reply.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Claude is a Completer backed by the Anthropic API.
type Claude struct {
	inner     anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewClaude creates a Claude client. apiKey defaults to ANTHROPIC_API_KEY.
func NewClaude(apiKey, model string, maxTokens int64) (*Claude, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	return &Claude{
		inner:     anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
	}, nil
}

// Complete implements Completer.
func (c *Claude) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude API call: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}

const systemPrompt = `You are a senior engineering lead breaking a requirements document into tasks for a team of coding agents.

Rules:
- Each task is a unit of work one agent can finish in under a day.
- Give every task a short unique id (kebab-case), a name starting with a verb, and a one-paragraph description.
- Set type to one of: design, implementation, testing, documentation, deployment, infrastructure, other.
- Group tasks into features with a short lowercase feature name.
- List required_skills using short lowercase names (go, sql, react, terraform).
- Give estimated_hours as a number.
- Only list dependencies that are not implied by phase order within a feature; design before implementation before testing is added automatically.
- Do not create cycles.

Return ONLY a JSON object with this structure, no commentary:
{
  "tasks": [
    {"id": "...", "name": "...", "description": "...", "type": "...", "feature": "...",
     "required_skills": ["..."], "estimated_hours": 4, "dependencies": ["<task id>"]}
  ]
}`

// Generator produces task drafts from requirements text.
type Generator struct {
	llm Completer
}

// New creates a generator.
func New(llm Completer) *Generator {
	return &Generator{llm: llm}
}

// GenerateTasks asks the model for a task breakdown of the requirements and
// parses its reply.
func (g *Generator) GenerateTasks(ctx context.Context, requirements string) ([]models.TaskDraft, []models.Edge, error) {
	if strings.TrimSpace(requirements) == "" {
		return nil, nil, fmt.Errorf("requirements document is empty")
	}
	reply, err := g.llm.Complete(ctx, systemPrompt, "Requirements:\n\n"+requirements)
	if err != nil {
		return nil, nil, err
	}
	return ParseDrafts(reply)
}

// ParseDrafts extracts drafts and explicit edges from model output. It
// tolerates markdown fences, text around the JSON, a bare task array, and
// common alternative key names.
func ParseDrafts(text string) ([]models.TaskDraft, []models.Edge, error) {
	doc := extractJSON(text)
	if doc == "" {
		return nil, nil, fmt.Errorf("%w: no JSON found", ErrNoTasks)
	}

	root := gjson.Parse(doc)
	tasks := root.Get("tasks")
	if root.IsArray() {
		tasks = root
	}

	var drafts []models.TaskDraft
	tasks.ForEach(func(_, item gjson.Result) bool {
		name := firstString(item, "name", "title")
		if name == "" {
			return true
		}
		d := models.TaskDraft{
			ID:             firstString(item, "id", "key"),
			Name:           name,
			Description:    item.Get("description").String(),
			Feature:        strings.ToLower(firstString(item, "feature", "group")),
			Labels:         stringList(item.Get("labels")),
			RequiredSkills: stringList(firstExisting(item, "required_skills", "skills")),
			EstimatedHours: firstExisting(item, "estimated_hours", "hours").Float(),
			Dependencies:   stringList(firstExisting(item, "dependencies", "depends_on")),
		}
		if typ, ok := models.ParseTaskType(item.Get("type").String()); ok {
			d.Type = typ
		}
		drafts = append(drafts, d)
		return true
	})
	if len(drafts) == 0 {
		return nil, nil, ErrNoTasks
	}

	var edges []models.Edge
	root.Get("edges").ForEach(func(_, item gjson.Result) bool {
		e := models.Edge{
			TaskID:    firstString(item, "task_id", "blocked_id"),
			DependsOn: firstString(item, "depends_on", "blocker_id"),
		}
		if e.TaskID != "" && e.DependsOn != "" {
			edges = append(edges, e)
		}
		return true
	})
	return drafts, edges, nil
}

// extractJSON returns the outermost JSON object or array in s.
func extractJSON(s string) string {
	s = stripJSONFences(s)
	if gjson.Valid(s) {
		return s
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closer := "}"
	if s[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(s, closer)
	if end <= start {
		return ""
	}
	candidate := s[start : end+1]
	if !gjson.Valid(candidate) {
		return ""
	}
	return candidate
}

// stripJSONFences removes markdown code fences that Claude sometimes adds.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}

func firstExisting(item gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := item.Get(k); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

func firstString(item gjson.Result, keys ...string) string {
	return strings.TrimSpace(firstExisting(item, keys...).String())
}

// stringList accepts an array or a comma-separated string.
func stringList(v gjson.Result) []string {
	var out []string
	if v.IsArray() {
		v.ForEach(func(_, s gjson.Result) bool {
			if str := strings.TrimSpace(s.String()); str != "" {
				out = append(out, str)
			}
			return true
		})
		return out
	}
	for _, s := range strings.Split(v.String(), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
