package pipeline

import (
	"fmt"
	"sort"
)

// Имена этапов пайплайна.
const (
	StageWebCrawling       = "web_crawling"
	StageContentExtraction = "content_extraction"
	StageKnowledgeBase     = "knowledge_base_creation"
	StageAgentCreation     = "agent_creation"
	StagePhoneProvisioning = "phone_provisioning"
	StageFinalIntegration  = "final_integration"
)

// Graph — статический граф зависимостей этапов.
//
// Граф строится один раз на процесс и далее только читается:
// per-run состояние (какие этапы завершены/упали) живёт в State.
type Graph struct {
	// deps — этап → список его prerequisites.
	deps map[string][]string

	// parallelGroups — группы этапов, которые могут выполняться
	// одновременно, когда их общие prerequisites удовлетворены.
	parallelGroups [][]string

	// order — топологически отсортированный список этапов
	// (алгоритм Кана). Используется как приоритет при выборе
	// следующего этапа в sequential-режиме.
	order []string
}

// NewGraph строит граф из таблицы зависимостей и параллельных групп.
// Возвращает ошибку при неизвестных зависимостях или цикле.
func NewGraph(deps map[string][]string, parallelGroups [][]string) (*Graph, error) {
	for stage, prereqs := range deps {
		for _, p := range prereqs {
			if _, ok := deps[p]; !ok {
				return nil, fmt.Errorf("%w: stage %q depends on %q", ErrUnknownStage, stage, p)
			}
		}
	}
	for _, group := range parallelGroups {
		for _, stage := range group {
			if _, ok := deps[stage]; !ok {
				return nil, fmt.Errorf("%w: parallel group member %q", ErrUnknownStage, stage)
			}
		}
	}

	g := &Graph{
		deps:           deps,
		parallelGroups: parallelGroups,
	}

	order, err := g.topologicalSort()
	if err != nil {
		return nil, err
	}
	g.order = order

	return g, nil
}

// DefaultGraph возвращает граф provisioning-пайплайна:
//
//	web_crawling → content_extraction → knowledge_base_creation
//	    → { agent_creation ∥ phone_provisioning } → final_integration
func DefaultGraph() *Graph {
	g, err := NewGraph(map[string][]string{
		StageWebCrawling:       {},
		StageContentExtraction: {StageWebCrawling},
		StageKnowledgeBase:     {StageContentExtraction},
		StageAgentCreation:     {StageKnowledgeBase},
		StagePhoneProvisioning: {StageKnowledgeBase},
		StageFinalIntegration:  {StageAgentCreation, StagePhoneProvisioning},
	}, [][]string{
		{StageAgentCreation, StagePhoneProvisioning},
	})
	if err != nil {
		// Таблица статическая: ошибка возможна только при правке кода.
		panic(err)
	}
	return g
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана).
// Возвращает ErrCyclicDependency, если обнаружен цикл.
func (g *Graph) topologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(g.deps))
	dependents := make(map[string][]string, len(g.deps))

	for stage, prereqs := range g.deps {
		inDegree[stage] = len(prereqs)
		for _, p := range prereqs {
			dependents[p] = append(dependents[p], stage)
		}
	}

	// Очередь этапов с inDegree = 0, в детерминированном порядке.
	queue := make([]string, 0, len(g.deps))
	for _, stage := range sortedKeys(g.deps) {
		if inDegree[stage] == 0 {
			queue = append(queue, stage)
		}
	}

	order := make([]string, 0, len(g.deps))
	for len(queue) > 0 {
		stage := queue[0]
		queue = queue[1:]
		order = append(order, stage)

		for _, dep := range dependents[stage] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(order) != len(g.deps) {
		return nil, ErrCyclicDependency
	}

	return order, nil
}

// Stages возвращает все этапы в топологическом порядке.
func (g *Graph) Stages() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Size возвращает количество этапов в графе.
func (g *Graph) Size() int {
	return len(g.deps)
}

// Contains проверяет, есть ли этап в графе.
func (g *Graph) Contains(stage string) bool {
	_, ok := g.deps[stage]
	return ok
}

// Prerequisites возвращает зависимости этапа.
func (g *Graph) Prerequisites(stage string) []string {
	return g.deps[stage]
}

// ParallelGroupOf возвращает параллельную группу, содержащую этап,
// или nil, если этап не входит ни в одну группу.
func (g *Graph) ParallelGroupOf(stage string) []string {
	for _, group := range g.parallelGroups {
		for _, member := range group {
			if member == stage {
				return group
			}
		}
	}
	return nil
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
