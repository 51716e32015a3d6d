package pipeline

import (
	"testing"
	"time"

	"github.com/shaiso/voxline/internal/domain"
)

func newTestState() *State {
	return NewState(domain.ProvisionRequest{
		TenantID:   "tenant-1",
		AgentName:  "Test Agent",
		WebsiteURL: "https://example.com",
	})
}

func TestState_StartCompleteStage(t *testing.T) {
	st := newTestState()

	st.StartStage(StageWebCrawling)
	if st.CurrentStage() != StageWebCrawling {
		t.Errorf("expected current stage %s, got %s", StageWebCrawling, st.CurrentStage())
	}
	if st.Status() != domain.StatusRunning {
		t.Errorf("expected status RUNNING, got %s", st.Status())
	}

	st.CompleteStage(StageWebCrawling, map[string]any{"pages": 3})

	if !st.IsCompleted(StageWebCrawling) {
		t.Error("stage should be completed")
	}
	if st.CurrentStage() != "" {
		t.Errorf("current stage should be cleared, got %s", st.CurrentStage())
	}

	result := st.StageResultFor(StageWebCrawling)
	if result == nil {
		t.Fatal("stage result should exist")
	}
	if result.Status != domain.StageCompleted {
		t.Errorf("expected COMPLETED, got %s", result.Status)
	}
	if result.Data["pages"] != 3 {
		t.Errorf("expected payload pages=3, got %v", result.Data["pages"])
	}
}

func TestState_StartStageIdempotent(t *testing.T) {
	st := newTestState()

	// Повторный старт до терминального перехода не создаёт
	// вторую запись
	st.StartStage(StageWebCrawling)
	st.StartStage(StageWebCrawling)

	if len(st.StageStatuses()) != 1 {
		t.Errorf("expected 1 stage result, got %d", len(st.StageStatuses()))
	}
}

func TestState_StartStageNeverOverwritesTerminal(t *testing.T) {
	st := newTestState()

	st.StartStage(StageWebCrawling)
	st.CompleteStage(StageWebCrawling, nil)
	st.StartStage(StageWebCrawling)

	result := st.StageResultFor(StageWebCrawling)
	if result.Status != domain.StageCompleted {
		t.Errorf("terminal result must not be overwritten, got %s", result.Status)
	}
}

func TestState_StageAppearsInAtMostOneList(t *testing.T) {
	st := newTestState()

	st.StartStage(StageWebCrawling)
	st.CompleteStage(StageWebCrawling, nil)

	// Попытка провалить уже завершённый этап игнорируется
	st.FailStage(StageWebCrawling, "late failure")

	if len(st.CompletedStages()) != 1 {
		t.Errorf("expected 1 completed stage, got %d", len(st.CompletedStages()))
	}
	if len(st.FailedStages()) != 0 {
		t.Errorf("expected 0 failed stages, got %d", len(st.FailedStages()))
	}

	// И наоборот: упавший этап не может стать завершённым
	st.StartStage(StageContentExtraction)
	st.FailStage(StageContentExtraction, "boom")
	st.CompleteStage(StageContentExtraction, nil)

	if st.IsCompleted(StageContentExtraction) {
		t.Error("failed stage must never become completed")
	}
	if len(st.FailedStages()) != 1 {
		t.Errorf("expected 1 failed stage, got %d", len(st.FailedStages()))
	}
}

func TestState_FailStageWithoutStart(t *testing.T) {
	st := newTestState()

	// Терминальный переход без предварительного старта создаёт запись
	st.FailStage(StageWebCrawling, "provider unavailable")

	result := st.StageResultFor(StageWebCrawling)
	if result == nil {
		t.Fatal("stage result should be created on terminal transition")
	}
	if result.Status != domain.StageFailed {
		t.Errorf("expected FAILED, got %s", result.Status)
	}
	if st.LastError() != "provider unavailable" {
		t.Errorf("unexpected last error: %s", st.LastError())
	}
}

func TestState_ResourcesForRollback_StableSort(t *testing.T) {
	st := newTestState()

	st.AddResource(domain.Resource{Type: domain.ResourceVoiceAgent, ID: "agent-1", Stage: StageAgentCreation})
	st.AddResource(domain.Resource{Type: domain.ResourceWebhook, ID: "hook-1", Stage: StageFinalIntegration})
	st.AddResource(domain.Resource{Type: domain.ResourceAgentRecord, ID: "rec-1", Stage: StageAgentCreation})
	st.AddResource(domain.Resource{Type: domain.ResourcePhoneNumber, ID: "+14155550100", Stage: StagePhoneProvisioning})

	ordered := st.ResourcesForRollback()

	want := []string{"hook-1", "+14155550100", "agent-1", "rec-1"}
	for i, id := range want {
		if ordered[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, ordered[i].ID)
		}
	}

	// voice_agent и agent_record имеют равный приоритет:
	// порядок создания сохраняется (stable sort)
	if ordered[2].Priority != ordered[3].Priority {
		t.Error("expected equal priorities for positions 2 and 3")
	}
}

func TestState_TimeRemaining(t *testing.T) {
	st := newTestState()
	st.StartedAt = time.Now().Add(-150 * time.Second)

	remaining := st.TimeRemaining(180 * time.Second)
	if remaining > 30*time.Second || remaining < 29*time.Second {
		t.Errorf("expected ~30s remaining, got %s", remaining)
	}

	if !st.ApproachingTimeout(180*time.Second, 30*time.Second) {
		t.Error("should be approaching timeout")
	}

	// Исчерпанный бюджет не уходит в минус
	st.StartedAt = time.Now().Add(-300 * time.Second)
	if st.TimeRemaining(180*time.Second) != 0 {
		t.Error("remaining should clamp to zero")
	}
}

func TestState_Progress(t *testing.T) {
	st := newTestState()

	st.StartStage(StageWebCrawling)
	st.CompleteStage(StageWebCrawling, nil)
	st.StartStage(StageContentExtraction)
	st.CompleteStage(StageContentExtraction, nil)

	got := st.Progress(6)
	want := 100.0 / 3
	if got < want-0.01 || got > want+0.01 {
		t.Errorf("expected progress ~%.2f, got %.2f", want, got)
	}
}

func TestState_MarkCompletedRecordsExecutionTime(t *testing.T) {
	st := newTestState()
	st.StartedAt = time.Now().Add(-42 * time.Second)

	st.MarkCompleted(domain.StatusCompleted)

	if st.Status() != domain.StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", st.Status())
	}
	if st.CompletedAt() == nil {
		t.Fatal("completedAt should be set")
	}
	total := st.TotalExecutionTime()
	if total < 42*time.Second || total > 43*time.Second {
		t.Errorf("expected ~42s total execution, got %s", total)
	}
}
