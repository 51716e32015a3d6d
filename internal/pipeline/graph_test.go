package pipeline

import (
	"errors"
	"testing"
)

func TestDefaultGraph_Shape(t *testing.T) {
	g := DefaultGraph()

	if g.Size() != 6 {
		t.Errorf("expected 6 stages, got %d", g.Size())
	}

	// Проверяем зависимости финального этапа
	prereqs := g.Prerequisites(StageFinalIntegration)
	if len(prereqs) != 2 {
		t.Fatalf("final_integration should have 2 prerequisites, got %d", len(prereqs))
	}

	// agent_creation и phone_provisioning — одна параллельная группа
	group := g.ParallelGroupOf(StageAgentCreation)
	if len(group) != 2 {
		t.Fatalf("agent_creation parallel group should have 2 members, got %d", len(group))
	}
	if g.ParallelGroupOf(StageWebCrawling) != nil {
		t.Error("web_crawling should not belong to a parallel group")
	}
}

func TestDefaultGraph_TopologicalOrder(t *testing.T) {
	g := DefaultGraph()
	order := g.Stages()

	pos := make(map[string]int, len(order))
	for i, stage := range order {
		pos[stage] = i
	}

	// Каждый этап идёт после всех своих зависимостей
	for _, stage := range order {
		for _, prereq := range g.Prerequisites(stage) {
			if pos[prereq] >= pos[stage] {
				t.Errorf("stage %s should come after prerequisite %s", stage, prereq)
			}
		}
	}
}

func TestNewGraph_CyclicDependency(t *testing.T) {
	_, err := NewGraph(map[string][]string{
		"a": {"b"},
		"b": {"a"},
	}, nil)

	if !errors.Is(err, ErrCyclicDependency) {
		t.Errorf("expected ErrCyclicDependency, got %v", err)
	}
}

func TestNewGraph_UnknownDependency(t *testing.T) {
	_, err := NewGraph(map[string][]string{
		"a": {"missing"},
	}, nil)

	if !errors.Is(err, ErrUnknownStage) {
		t.Errorf("expected ErrUnknownStage, got %v", err)
	}
}
