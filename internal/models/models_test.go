package models

import (
	"reflect"
	"testing"
	"time"
)

func TestParseTaskType(t *testing.T) {
	cases := map[string]TaskType{
		"Design": TaskTypeDesign,
		" impl ": TaskTypeImplementation,
		"tests":  TaskTypeTesting,
		"docs":   TaskTypeDocumentation,
		"deploy": TaskTypeDeployment,
		"infra":  TaskTypeInfrastructure,
		"other":  TaskTypeOther,
	}
	for in, want := range cases {
		got, ok := ParseTaskType(in)
		if !ok || got != want {
			t.Errorf("ParseTaskType(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	if _, ok := ParseTaskType("research"); ok {
		t.Error("Expected unknown type to be rejected")
	}
}

func TestTaskCloneIsDeep(t *testing.T) {
	orig := &Task{
		ID:             "a",
		Dependencies:   []string{"b"},
		RequiredSkills: []string{"go"},
		Lease:          &Lease{TaskID: "a", AgentID: "agent-1"},
	}
	c := orig.Clone()
	c.Dependencies[0] = "x"
	c.RequiredSkills[0] = "rust"
	c.Lease.AgentID = "agent-2"

	if orig.Dependencies[0] != "b" || orig.RequiredSkills[0] != "go" || orig.Lease.AgentID != "agent-1" {
		t.Fatalf("Clone shares state with original: %+v", orig)
	}
}

func TestIsOrphan(t *testing.T) {
	lease := &Lease{TaskID: "a", AgentID: "agent-1"}
	tests := []struct {
		name string
		task Task
		want bool
	}{
		{"todo", Task{ID: "a", Status: TaskStatusTodo}, false},
		{"held", Task{ID: "a", Status: TaskStatusInProgress, AssignedAgent: "agent-1", Lease: lease}, false},
		{"no lease", Task{ID: "a", Status: TaskStatusInProgress, AssignedAgent: "agent-1"}, true},
		{"no agent", Task{ID: "a", Status: TaskStatusInProgress, Lease: lease}, true},
		{"wrong holder", Task{ID: "a", Status: TaskStatusInProgress, AssignedAgent: "agent-2", Lease: lease}, true},
		{"manual block", Task{ID: "a", Status: TaskStatusBlocked}, false},
		{"held block", Task{ID: "a", Status: TaskStatusBlocked, AssignedAgent: "agent-1", Lease: lease}, false},
	}
	for _, tt := range tests {
		if got := tt.task.IsOrphan(); got != tt.want {
			t.Errorf("%s: IsOrphan() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestLeaseExpired(t *testing.T) {
	now := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	l := &Lease{ExpiresAt: now}
	if !l.Expired(now) {
		t.Error("Lease should be expired at its deadline")
	}
	if l.Expired(now.Add(-time.Second)) {
		t.Error("Lease should be live before its deadline")
	}
}

func TestNormalizeSkills(t *testing.T) {
	got := NormalizeSkills([]string{" Go", "sql", "go", ""})
	if want := []string{"go", "sql"}; !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeSkills = %v, want %v", got, want)
	}
}
