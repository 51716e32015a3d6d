package pipeline

import (
	"testing"
	"time"
)

// backdate сдвигает старт пайплайна в прошлое, имитируя
// прошедшее время.
func backdate(st *State, elapsed time.Duration) {
	st.StartedAt = time.Now().Add(-elapsed)
}

// completeThrough завершает этапы до параллельной развилки.
func completeThrough(st *State, stages ...string) {
	for _, stage := range stages {
		st.StartStage(stage)
		st.CompleteStage(stage, nil)
	}
}

func TestExecutionStrategy_FreshRun(t *testing.T) {
	c := New(Config{})
	st := newTestState()

	strat := c.ExecutionStrategy(st)

	if strat.Mode != ModeSequential {
		t.Errorf("expected sequential mode, got %s", strat.Mode)
	}
	if strat.UseFallbacks {
		t.Error("fallbacks should be off with a full budget")
	}
	if strat.SkipOptional {
		t.Error("skip_optional should be off with a full budget")
	}
	if len(strat.TimeoutAdjustments) != 0 {
		t.Error("timeouts should not be scaled with a full budget")
	}
}

func TestExecutionStrategy_ParallelWhenGroupReady(t *testing.T) {
	c := New(Config{})
	st := newTestState()
	completeThrough(st, StageWebCrawling, StageContentExtraction, StageKnowledgeBase)

	strat := c.ExecutionStrategy(st)

	if strat.Mode != ModeParallel {
		t.Errorf("expected parallel mode, got %s", strat.Mode)
	}
}

func TestExecutionStrategy_NoParallelUnderTimePressure(t *testing.T) {
	c := New(Config{})
	st := newTestState()
	completeThrough(st, StageWebCrawling, StageContentExtraction, StageKnowledgeBase)
	backdate(st, 125*time.Second) // осталось ~55s < 60s

	strat := c.ExecutionStrategy(st)

	if strat.Mode != ModeSequential {
		t.Errorf("parallel mode should be off below the threshold, got %s", strat.Mode)
	}
}

func TestExecutionStrategy_Fallbacks(t *testing.T) {
	c := New(Config{})
	st := newTestState()
	backdate(st, 100*time.Second) // осталось ~80s < 90s

	strat := c.ExecutionStrategy(st)

	if !strat.UseFallbacks {
		t.Error("fallbacks should be on below 90s remaining")
	}
	if strat.SkipOptional {
		t.Error("skip_optional should still be off at ~80s remaining")
	}
}

func TestExecutionStrategy_SkipOptional(t *testing.T) {
	c := New(Config{})
	st := newTestState()
	backdate(st, 130*time.Second) // осталось ~50s < 60s

	strat := c.ExecutionStrategy(st)

	if !strat.SkipOptional {
		t.Fatal("skip_optional should be on below 60s remaining")
	}
	if len(strat.PriorityStages) == 0 {
		t.Fatal("priority stages should be set")
	}
	if strat.IsPriority(StageFinalIntegration) {
		t.Error("final_integration is not on the minimal critical path")
	}
	if !strat.IsPriority(StageAgentCreation) {
		t.Error("agent_creation must be on the minimal critical path")
	}
}

func TestExecutionStrategy_TimeoutScaling(t *testing.T) {
	c := New(Config{})
	st := newTestState()
	backdate(st, 80*time.Second) // осталось ~100s < 120s

	strat := c.ExecutionStrategy(st)

	if len(strat.TimeoutAdjustments) == 0 {
		t.Fatal("timeouts should be scaled below 120s remaining")
	}

	// Сумма ужатых таймаутов влезает в 80% остатка
	var total time.Duration
	for stage, d := range strat.TimeoutAdjustments {
		if d < 5*time.Second {
			t.Errorf("scaled timeout for %s below floor: %s", stage, d)
		}
		if d >= c.Timing().StageTimeout(stage) {
			t.Errorf("scaled timeout for %s not reduced: %s", stage, d)
		}
		total += d
	}
	budget := time.Duration(float64(strat.TimeRemaining) * 0.8)
	if total > budget+time.Second {
		t.Errorf("scaled timeouts sum %s exceeds budget %s", total, budget)
	}
}

func TestExecutionStrategy_NoScalingWhenTimeoutsFit(t *testing.T) {
	c := New(Config{})
	st := newTestState()
	// Завершены все этапы кроме final_integration (таймаут 15s):
	// 15s влезает в 80% от ~100s, масштабирование не нужно
	completeThrough(st, StageWebCrawling, StageContentExtraction, StageKnowledgeBase,
		StageAgentCreation, StagePhoneProvisioning)
	backdate(st, 80*time.Second)

	strat := c.ExecutionStrategy(st)

	if len(strat.TimeoutAdjustments) != 0 {
		t.Errorf("no scaling expected when pending timeouts fit, got %v", strat.TimeoutAdjustments)
	}
}
