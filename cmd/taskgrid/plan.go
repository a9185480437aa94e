package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fentz26/taskgrid/internal/models"
	"gopkg.in/yaml.v3"
)

// Plan is a task plan file: drafts plus any explicit edges. JSON plans parse
// as YAML.
type Plan struct {
	Tasks []models.TaskDraft `json:"tasks" yaml:"tasks"`
	Edges []models.Edge      `json:"edges,omitempty" yaml:"edges,omitempty"`
}

// loadPlan reads a plan file. A file holding a bare list is read as tasks.
func loadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return parsePlan(data)
}

func parsePlan(data []byte) (*Plan, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, fmt.Errorf("plan is empty")
	}

	plan := &Plan{}
	root := node.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&plan.Tasks); err != nil {
			return nil, fmt.Errorf("parse plan: %w", err)
		}
	case yaml.MappingNode:
		if err := root.Decode(plan); err != nil {
			return nil, fmt.Errorf("parse plan: %w", err)
		}
	default:
		return nil, fmt.Errorf("plan must be a list of tasks or a mapping with a tasks key")
	}
	if len(plan.Tasks) == 0 {
		return nil, fmt.Errorf("plan contains no tasks")
	}
	return plan, nil
}

func writePlan(path string, plan *Plan) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write plan: %w", err)
	}
	if err := encodePlan(f, plan); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func encodePlan(w io.Writer, plan *Plan) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(plan); err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	return enc.Close()
}
