package localaudit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/morezero/actions-dispatcher/pkg/events"
)

const storeTestPrefix = "localaudit:store_test"

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("%s - Open: %v", storeTestPrefix, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_PublishAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var _ events.EventPublisher = s

	evts := []*events.ActionDispatchedEvent{
		{InvocationID: "a", RequestID: "r1", SystemName: "Test", ActionName: "ping", Status: "Success", DurationMs: 1, Timestamp: "2025-01-01T10:00:00Z"},
		{InvocationID: "b", RequestID: "r2", SystemName: "GitFlame", ActionName: "Get issue", Status: "Fail", ErrorType: "ACTION_EXECUTION", ErrorMessage: "404", DurationMs: 30, Timestamp: "2025-01-01T10:00:01Z"},
		{InvocationID: "c", RequestID: "r3", SystemName: "Test", ActionName: "ping", Status: "Success", DurationMs: 2, Timestamp: "2025-01-01T10:00:02Z"},
	}
	for _, e := range evts {
		if err := s.PublishDispatched(ctx, e); err != nil {
			t.Fatalf("%s - publish %s: %v", storeTestPrefix, e.InvocationID, err)
		}
	}
	// Duplicate is ignored.
	if err := s.PublishDispatched(ctx, evts[0]); err != nil {
		t.Fatalf("%s - duplicate publish: %v", storeTestPrefix, err)
	}

	recent, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("%s - Recent: %v", storeTestPrefix, err)
	}
	if len(recent) != 2 {
		t.Fatalf("%s - expected 2 events, got %d", storeTestPrefix, len(recent))
	}
	if recent[0].InvocationID != "c" || recent[1].InvocationID != "b" {
		t.Errorf("%s - expected newest first, got %s,%s", storeTestPrefix, recent[0].InvocationID, recent[1].InvocationID)
	}
	if recent[1].ErrorType != "ACTION_EXECUTION" || recent[1].ErrorMessage != "404" {
		t.Errorf("%s - error columns not round-tripped: %+v", storeTestPrefix, recent[1])
	}

	counts, err := s.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("%s - CountByStatus: %v", storeTestPrefix, err)
	}
	if counts["Success"] != 2 || counts["Fail"] != 1 {
		t.Errorf("%s - unexpected counts %v", storeTestPrefix, counts)
	}
}

func TestStore_ReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("%s - Open: %v", storeTestPrefix, err)
	}
	if err := s.PublishDispatched(ctx, &events.ActionDispatchedEvent{InvocationID: "x", Status: "Success", Timestamp: "2025-01-01T00:00:00Z"}); err != nil {
		t.Fatalf("%s - publish: %v", storeTestPrefix, err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("%s - reopen: %v", storeTestPrefix, err)
	}
	defer s.Close()

	recent, err := s.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("%s - Recent: %v", storeTestPrefix, err)
	}
	if len(recent) != 1 || recent[0].InvocationID != "x" {
		t.Errorf("%s - expected persisted row, got %+v", storeTestPrefix, recent)
	}
}
