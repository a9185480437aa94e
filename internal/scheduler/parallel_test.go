package scheduler

import (
	"fmt"
	"sync"
	"testing"

	"github.com/fentz26/taskgrid/internal/models"
)

// TestConcurrentRequestsSingleTask races two agents for the only eligible task.
func TestConcurrentRequestsSingleTask(t *testing.T) {
	for round := 0; round < 50; round++ {
		sch, _ := newTestScheduler(t, nil)
		mustRegister(t, sch, "agent-1")
		mustRegister(t, sch, "agent-2")
		mustSubmit(t, sch, []models.TaskDraft{{ID: "only", Name: "Only task", Type: models.TaskTypeOther}})

		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
			mu    sync.Mutex
			got   []string
		)
		for _, agent := range []string{"agent-1", "agent-2"} {
			wg.Add(1)
			go func(agent string) {
				defer wg.Done()
				<-start
				task, err := sch.RequestNextTask(agent)
				if err != nil {
					t.Errorf("RequestNextTask failed: %v", err)
					return
				}
				if task != nil {
					mu.Lock()
					got = append(got, agent)
					mu.Unlock()
				}
			}(agent)
		}
		close(start)
		wg.Wait()

		if len(got) != 1 {
			t.Fatalf("Round %d: expected exactly one winner, got %v", round, got)
		}
		task := mustTask(t, sch, "only")
		if task.AssignedAgent != got[0] {
			t.Fatalf("Round %d: task held by %q but %q won", round, task.AssignedAgent, got[0])
		}
	}
}

// TestTenParallelAgents verifies that many agents polling at once never share
// a task and that every task is handed out exactly once.
func TestTenParallelAgents(t *testing.T) {
	sch, _ := newTestScheduler(t, nil)

	const numAgents, numTasks = 10, 40
	var drafts []models.TaskDraft
	for i := 0; i < numTasks; i++ {
		drafts = append(drafts, models.TaskDraft{
			ID:   fmt.Sprintf("task-%02d", i),
			Name: fmt.Sprintf("Chore %d", i),
			Type: models.TaskTypeOther,
		})
	}
	mustSubmit(t, sch, drafts)
	for i := 0; i < numAgents; i++ {
		mustRegister(t, sch, fmt.Sprintf("agent-%d", i))
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed = make(map[string]string)
	)
	for i := 0; i < numAgents; i++ {
		wg.Add(1)
		go func(agent string) {
			defer wg.Done()
			for {
				task, err := sch.RequestNextTask(agent)
				if err != nil {
					t.Errorf("RequestNextTask failed: %v", err)
					return
				}
				if task == nil {
					return
				}
				mu.Lock()
				if prev, ok := claimed[task.ID]; ok {
					t.Errorf("Task %s assigned to %s and %s", task.ID, prev, agent)
				}
				claimed[task.ID] = agent
				mu.Unlock()

				if _, err := sch.ReportProgress(agent, task.ID, 100, models.ProgressCompleted, ""); err != nil {
					t.Errorf("Completion failed: %v", err)
					return
				}
			}
		}(fmt.Sprintf("agent-%d", i))
	}
	wg.Wait()

	if len(claimed) != numTasks {
		t.Errorf("Expected %d tasks handed out, got %d", numTasks, len(claimed))
	}
	stats := sch.GetStats()
	if stats.Tasks[models.TaskStatusDone] != numTasks || stats.ActiveLeases != 0 {
		t.Errorf("Unexpected final stats %+v", stats)
	}
}
