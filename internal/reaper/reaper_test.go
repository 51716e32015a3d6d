package reaper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/voxline/internal/domain"
	"github.com/shaiso/voxline/internal/mq"
	"github.com/shaiso/voxline/internal/rollback"
)

// --- Fakes ---

type fakeHistory struct {
	mu       sync.Mutex
	failed   []rollback.HistoryEntry
	resolved []uuid.UUID
	listErr  error
}

func (f *fakeHistory) ListFailed(ctx context.Context, limit int) ([]rollback.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]rollback.HistoryEntry, len(f.failed))
	copy(out, f.failed)
	return out, nil
}

func (f *fakeHistory) MarkResolved(ctx context.Context, entry *rollback.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, entry.ID)
	return nil
}

func (f *fakeHistory) resolvedIDs() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.resolved...)
}

// recordingCompensator собирает компенсированные ресурсы и падает
// для идентификаторов из failOn.
type recordingCompensator struct {
	mu     sync.Mutex
	seen   []domain.Resource
	failOn map[string]bool
}

func (c *recordingCompensator) Compensate(ctx context.Context, res domain.Resource) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, res)
	if c.failOn[res.ID] {
		return errors.New("provider unavailable")
	}
	return nil
}

func (c *recordingCompensator) seenIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, len(c.seen))
	for i, res := range c.seen {
		ids[i] = res.ID
	}
	return ids
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func entryWithFailures(failures ...rollback.Failure) rollback.HistoryEntry {
	return rollback.HistoryEntry{
		ID:            uuid.New(),
		PipelineID:    uuid.New(),
		TenantID:      "tenant-1",
		Strategy:      rollback.FullRollback,
		Status:        rollback.ReportPartialSuccess,
		ResourceCount: len(failures),
		FailedCount:   len(failures),
		Failures:      failures,
		CreatedAt:     time.Now(),
	}
}

// --- Tests ---

func TestSweepResolvesCleanEntries(t *testing.T) {
	comp := &recordingCompensator{}
	registry := rollback.Registry{}
	registry.Register(domain.ResourcePhoneNumber, comp)
	registry.Register(domain.ResourceVoiceAgent, comp)

	entry := entryWithFailures(
		rollback.Failure{ResourceID: "pn-1", Type: domain.ResourcePhoneNumber, Detail: "timeout"},
		rollback.Failure{ResourceID: "va-1", Type: domain.ResourceVoiceAgent, Detail: "timeout"},
	)
	history := &fakeHistory{failed: []rollback.HistoryEntry{entry}}

	r := New(Config{
		History:      history,
		Compensators: registry,
		Logger:       quietLogger(),
	})

	if err := r.Sweep(context.Background()); err != nil {
		t.Fatalf("unexpected sweep error: %v", err)
	}

	seen := comp.seenIDs()
	if len(seen) != 2 {
		t.Fatalf("expected 2 retried compensations, got %d", len(seen))
	}

	resolved := history.resolvedIDs()
	if len(resolved) != 1 || resolved[0] != entry.ID {
		t.Errorf("expected entry %s resolved, got %v", entry.ID, resolved)
	}
}

func TestSweepKeepsEntriesWithRemainingFailures(t *testing.T) {
	comp := &recordingCompensator{failOn: map[string]bool{"pn-1": true}}
	registry := rollback.Registry{}
	registry.Register(domain.ResourcePhoneNumber, comp)
	registry.Register(domain.ResourceWebhook, comp)

	entry := entryWithFailures(
		rollback.Failure{ResourceID: "pn-1", Type: domain.ResourcePhoneNumber, Detail: "timeout"},
		rollback.Failure{ResourceID: "wh-1", Type: domain.ResourceWebhook, Detail: "timeout"},
	)
	history := &fakeHistory{failed: []rollback.HistoryEntry{entry}}

	r := New(Config{
		History:      history,
		Compensators: registry,
		Logger:       quietLogger(),
	})

	if err := r.Sweep(context.Background()); err != nil {
		t.Fatalf("unexpected sweep error: %v", err)
	}

	// Webhook всё равно пробуем, несмотря на падение номера
	seen := comp.seenIDs()
	if len(seen) != 2 {
		t.Fatalf("expected both resources retried, got %v", seen)
	}

	if len(history.resolvedIDs()) != 0 {
		t.Error("entry with remaining failures should not be resolved")
	}
}

func TestSweepResolvesEntriesWithUnknownTypes(t *testing.T) {
	// Тип без компенсатора никогда не дочистится — запись
	// не должна вечно крутиться в очереди
	entry := entryWithFailures(
		rollback.Failure{ResourceID: "x-1", Type: domain.ResourceType("unknown"), Detail: "timeout"},
	)
	history := &fakeHistory{failed: []rollback.HistoryEntry{entry}}

	r := New(Config{
		History:      history,
		Compensators: rollback.Registry{},
		Logger:       quietLogger(),
	})

	if err := r.Sweep(context.Background()); err != nil {
		t.Fatalf("unexpected sweep error: %v", err)
	}

	if len(history.resolvedIDs()) != 1 {
		t.Error("entry with only unregistered types should be resolved")
	}
}

func TestSweepPropagatesListError(t *testing.T) {
	history := &fakeHistory{listErr: errors.New("db down")}

	r := New(Config{
		History:      history,
		Compensators: rollback.Registry{},
		Logger:       quietLogger(),
	})

	if err := r.Sweep(context.Background()); err == nil {
		t.Fatal("expected error from sweep")
	}
}

func TestHandlePipelineFailedTriggersSweep(t *testing.T) {
	comp := &recordingCompensator{}
	registry := rollback.Registry{}
	registry.Register(domain.ResourcePhoneNumber, comp)

	entry := entryWithFailures(
		rollback.Failure{ResourceID: "pn-1", Type: domain.ResourcePhoneNumber, Detail: "timeout"},
	)
	history := &fakeHistory{failed: []rollback.HistoryEntry{entry}}

	r := New(Config{
		History:      history,
		Compensators: registry,
		Logger:       quietLogger(),
	})

	msg := &mq.Message{
		ID:   uuid.New().String(),
		Type: mq.MessageTypePipelineFailed,
		Payload: map[string]any{
			"pipeline_id":         uuid.New().String(),
			"tenant_id":           "tenant-1",
			"rollback_attempted":  true,
			"rollback_successful": false,
		},
	}

	if err := r.handlePipelineFailed(context.Background(), msg); err != nil {
		t.Fatalf("unexpected handler error: %v", err)
	}
	if len(comp.seenIDs()) != 1 {
		t.Error("expected event-driven sweep to retry compensation")
	}
}

func TestHandlePipelineFailedSkipsCompleteRollback(t *testing.T) {
	history := &fakeHistory{listErr: errors.New("must not be called")}

	r := New(Config{
		History:      history,
		Compensators: rollback.Registry{},
		Logger:       quietLogger(),
	})

	msg := &mq.Message{
		ID:   uuid.New().String(),
		Type: mq.MessageTypePipelineFailed,
		Payload: map[string]any{
			"pipeline_id":         uuid.New().String(),
			"tenant_id":           "tenant-1",
			"rollback_attempted":  true,
			"rollback_successful": true,
		},
	}

	// Откат завершился полностью — дочищать нечего
	if err := r.handlePipelineFailed(context.Background(), msg); err != nil {
		t.Fatalf("unexpected handler error: %v", err)
	}
}

func TestHandlePipelineFailedDropsBadPayload(t *testing.T) {
	r := New(Config{
		History:      &fakeHistory{},
		Compensators: rollback.Registry{},
		Logger:       quietLogger(),
	})

	msg := &mq.Message{
		ID:      uuid.New().String(),
		Type:    mq.MessageTypePipelineFailed,
		Payload: map[string]any{"pipeline_id": "not-a-uuid"},
	}

	err := r.handlePipelineFailed(context.Background(), msg)
	if !errors.Is(err, mq.ErrDrop) {
		t.Errorf("expected ErrDrop for malformed payload, got %v", err)
	}
}

func TestFailureResourceRoundTrip(t *testing.T) {
	failure := rollback.Failure{
		ResourceID: "pn-9",
		Type:       domain.ResourcePhoneNumber,
		Detail:     "timeout",
		Data:       map[string]any{"number": "+14155550100"},
	}

	res := failure.Resource()
	if res.ID != "pn-9" || res.Type != domain.ResourcePhoneNumber {
		t.Errorf("unexpected resource: %+v", res)
	}
	if res.Data["number"] != "+14155550100" {
		t.Errorf("resource data lost: %+v", res.Data)
	}
	if res.Priority != domain.ResourcePhoneNumber.RollbackPriority() {
		t.Errorf("expected priority %d, got %d", domain.ResourcePhoneNumber.RollbackPriority(), res.Priority)
	}
}
