package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/voxline/internal/domain"
)

// successExecutor возвращает success для каждого этапа.
func successExecutor(ctx context.Context, st *State, stage string, strat Strategy) (*StageOutcome, error) {
	return &StageOutcome{
		Status:  OutcomeSuccess,
		Payload: map[string]any{"stage": stage},
	}, nil
}

func TestCoordinate_AllStagesComplete(t *testing.T) {
	c := New(Config{})
	st := newTestState()

	results, err := c.Coordinate(context.Background(), st, successExecutor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(st.CompletedStages()) != 6 {
		t.Errorf("expected 6 completed stages, got %d: %v", len(st.CompletedStages()), st.CompletedStages())
	}
	if len(st.FailedStages()) != 0 {
		t.Errorf("expected no failed stages, got %v", st.FailedStages())
	}
	if len(results) != 6 {
		t.Errorf("expected 6 results, got %d", len(results))
	}
}

func TestCoordinate_DependencyInvariant(t *testing.T) {
	c := New(Config{})
	st := newTestState()

	// Исполнитель проверяет, что все prerequisites завершены
	// к моменту его вызова
	exec := func(ctx context.Context, st *State, stage string, strat Strategy) (*StageOutcome, error) {
		for _, prereq := range c.Graph().Prerequisites(stage) {
			if !st.IsCompleted(prereq) {
				t.Errorf("stage %s executed before prerequisite %s completed", stage, prereq)
			}
		}
		return &StageOutcome{Status: OutcomeSuccess}, nil
	}

	if _, err := c.Coordinate(context.Background(), st, exec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCoordinate_ParallelBatchJoined(t *testing.T) {
	c := New(Config{})
	st := newTestState()

	// Барьер: оба этапа параллельной группы должны стартовать
	// до того, как любой из них завершится. При последовательном
	// выполнении этапы упали бы по таймауту.
	var mu sync.Mutex
	started := 0
	barrier := make(chan struct{})

	exec := func(ctx context.Context, st *State, stage string, strat Strategy) (*StageOutcome, error) {
		if stage == StageAgentCreation || stage == StagePhoneProvisioning {
			mu.Lock()
			started++
			if started == 2 {
				close(barrier)
			}
			mu.Unlock()

			select {
			case <-barrier:
			case <-ctx.Done():
				return nil, ctx.Err()
			}

			// final_integration ещё не должен был стартовать
			if st.IsCompleted(StageFinalIntegration) || st.IsFailed(StageFinalIntegration) {
				t.Errorf("final_integration reached terminal state before %s finished", stage)
			}
		}
		return &StageOutcome{Status: OutcomeSuccess}, nil
	}

	if _, err := c.Coordinate(context.Background(), st, exec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !st.IsCompleted(StageAgentCreation) || !st.IsCompleted(StagePhoneProvisioning) {
		t.Error("both parallel stages should complete")
	}
	if !st.IsCompleted(StageFinalIntegration) {
		t.Error("final_integration should complete after the parallel batch")
	}
}

func TestCoordinate_CriticalFailureStopsLoop(t *testing.T) {
	c := New(Config{})
	st := newTestState()

	exec := func(ctx context.Context, st *State, stage string, strat Strategy) (*StageOutcome, error) {
		if stage == StageAgentCreation {
			return nil, errors.New("provider rejected agent")
		}
		return &StageOutcome{Status: OutcomeSuccess}, nil
	}

	if _, err := c.Coordinate(context.Background(), st, exec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !st.IsFailed(StageAgentCreation) {
		t.Error("agent_creation should be failed")
	}
	if st.IsCompleted(StageFinalIntegration) || st.IsFailed(StageFinalIntegration) {
		t.Error("final_integration must not be scheduled after a critical failure")
	}
}

func TestCoordinate_NonCriticalFailureBlocksDependents(t *testing.T) {
	c := New(Config{})
	st := newTestState()

	// Падение phone_provisioning не критично: цикл останавливается
	// только когда заблокированы оставшиеся этапы
	exec := func(ctx context.Context, st *State, stage string, strat Strategy) (*StageOutcome, error) {
		if stage == StagePhoneProvisioning {
			return &StageOutcome{Status: OutcomeError, Error: "no numbers available"}, nil
		}
		return &StageOutcome{Status: OutcomeSuccess}, nil
	}

	_, err := c.Coordinate(context.Background(), st, exec)
	if err != nil {
		t.Fatalf("blocked graph is a normal halt, got error: %v", err)
	}

	if !st.IsFailed(StagePhoneProvisioning) {
		t.Error("phone_provisioning should be failed")
	}
	if !st.IsCompleted(StageAgentCreation) {
		t.Error("agent_creation should still complete")
	}
	if st.IsCompleted(StageFinalIntegration) {
		t.Error("final_integration is blocked by its failed prerequisite")
	}
}

func TestCoordinate_StuckGraph(t *testing.T) {
	// Цикл в графе собирается напрямую, минуя валидацию NewGraph:
	// у координатора нет готовых этапов и нет падений
	g := &Graph{
		deps: map[string][]string{
			"a": {"b"},
			"b": {"a"},
		},
		order: []string{"a", "b"},
	}
	c := New(Config{Graph: g})
	st := newTestState()

	_, err := c.Coordinate(context.Background(), st, successExecutor)
	if !errors.Is(err, ErrGraphStuck) {
		t.Errorf("expected ErrGraphStuck, got %v", err)
	}
}

func TestCoordinate_BudgetExhaustionStopsScheduling(t *testing.T) {
	c := New(Config{})
	st := newTestState()
	backdate(st, 155*time.Second) // осталось ~25s <= 30s warning

	calls := 0
	exec := func(ctx context.Context, st *State, stage string, strat Strategy) (*StageOutcome, error) {
		calls++
		return &StageOutcome{Status: OutcomeSuccess}, nil
	}

	if _, err := c.Coordinate(context.Background(), st, exec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 0 {
		t.Errorf("no stage should be scheduled inside the warning window, got %d calls", calls)
	}
}

func TestCoordinate_StageTimeout(t *testing.T) {
	timing := DefaultTiming()
	timing.StageTimeouts[StageWebCrawling] = 30 * time.Millisecond
	c := New(Config{Timing: timing})
	st := newTestState()

	exec := func(ctx context.Context, st *State, stage string, strat Strategy) (*StageOutcome, error) {
		if stage == StageWebCrawling {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &StageOutcome{Status: OutcomeSuccess}, nil
	}

	if _, err := c.Coordinate(context.Background(), st, exec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !st.IsFailed(StageWebCrawling) {
		t.Fatal("web_crawling should fail on timeout")
	}
	result := st.StageResultFor(StageWebCrawling)
	if result.ErrorMessage == "" {
		t.Error("timeout failure should carry a message")
	}
}

func TestCoordinate_HarvestsCreatedResources(t *testing.T) {
	c := New(Config{})
	st := newTestState()

	exec := func(ctx context.Context, st *State, stage string, strat Strategy) (*StageOutcome, error) {
		outcome := &StageOutcome{Status: OutcomeSuccess}
		if stage == StageAgentCreation {
			outcome.Resources = []ResourceDecl{
				{Type: domain.ResourceVoiceAgent, ID: "ext-agent-1"},
				{Type: domain.ResourceAgentRecord, ID: "rec-1"},
			}
		}
		return outcome, nil
	}

	if _, err := c.Coordinate(context.Background(), st, exec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resources := st.Resources()
	if len(resources) != 2 {
		t.Fatalf("expected 2 resources, got %d", len(resources))
	}
	if resources[0].Priority != domain.ResourceVoiceAgent.RollbackPriority() {
		t.Error("resource priority should come from the type table")
	}
	if resources[0].Stage != StageAgentCreation {
		t.Errorf("resource should be tagged with its stage, got %s", resources[0].Stage)
	}
}

func TestCoordinator_Registry(t *testing.T) {
	c := New(Config{})
	st := newTestState()

	if err := c.Register(st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Register(st); !errors.Is(err, ErrPipelineAlreadyActive) {
		t.Errorf("expected ErrPipelineAlreadyActive, got %v", err)
	}

	got, err := c.Get(st.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != st {
		t.Error("registry should return the same State instance")
	}

	snapshot, err := c.PipelineStatus(st.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snapshot.PipelineID != st.ID {
		t.Error("snapshot should carry the pipeline id")
	}

	c.Unregister(st.ID)
	if _, err := c.Get(st.ID); !errors.Is(err, ErrPipelineNotActive) {
		t.Errorf("expected ErrPipelineNotActive, got %v", err)
	}
}

func TestCoordinator_ConcurrentRegistry(t *testing.T) {
	c := New(Config{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st := NewState(domain.ProvisionRequest{
				TenantID:   fmt.Sprintf("tenant-%d", i),
				AgentName:  "Agent",
				WebsiteURL: "https://example.com",
			})
			if err := c.Register(st); err != nil {
				t.Errorf("register: %v", err)
				return
			}
			if _, err := c.Get(st.ID); err != nil {
				t.Errorf("get: %v", err)
			}
			c.Unregister(st.ID)
		}(i)
	}
	wg.Wait()

	if c.ActiveCount() != 0 {
		t.Errorf("expected empty registry, got %d", c.ActiveCount())
	}
}
