package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"esim-service/internal/model"
)

func seedProfile(id, tenant string, created time.Time) *model.Profile {
	return &model.Profile{
		ID:        id,
		TenantID:  tenant,
		Provider:  model.ProviderMPT,
		Status:    model.StatusCreated,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestMemoryUpdateIsCompareAndSwap(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	if err := s.CreateProfile(ctx, seedProfile("p-1", "t-1", now), nil); err != nil {
		t.Fatalf("create returned error: %v", err)
	}

	first, _ := s.GetProfile(ctx, "p-1")
	second, _ := s.GetProfile(ctx, "p-1")

	first.Status = model.StatusDeployed
	if err := s.UpdateProfile(ctx, first, 1, &model.OperationLogEntry{ID: "l-1", ProfileID: "p-1", TenantID: "t-1"}); err != nil {
		t.Fatalf("first update returned error: %v", err)
	}
	if first.Version != 2 {
		t.Fatalf("expected version 2, got %d", first.Version)
	}

	second.Status = model.StatusError
	err := s.UpdateProfile(ctx, second, 1, &model.OperationLogEntry{ID: "l-2", ProfileID: "p-1", TenantID: "t-1"})
	if !errors.Is(err, model.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	stored, _ := s.GetProfile(ctx, "p-1")
	if stored.Status != model.StatusDeployed {
		t.Fatalf("losing writer must not change state, got %s", stored.Status)
	}
	_, total, _ := s.ListLogs(ctx, LogFilter{ProfileID: "p-1"})
	if total != 1 {
		t.Fatalf("losing writer must not append its entry, got %d entries", total)
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p := seedProfile("p-1", "t-1", time.Now())
	p.Metadata = map[string]interface{}{"dept": "sales"}
	_ = s.CreateProfile(ctx, p, nil)

	got, _ := s.GetProfile(ctx, "p-1")
	got.Metadata["dept"] = "ops"
	got.Status = model.StatusActive

	again, _ := s.GetProfile(ctx, "p-1")
	if again.Metadata["dept"] != "sales" || again.Status != model.StatusCreated {
		t.Fatalf("stored profile was mutated through a returned copy: %+v", again)
	}
}

func TestMemoryListIsTenantScopedAndPaged(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c", "d"} {
		_ = s.CreateProfile(ctx, seedProfile(id, "t-1", base.Add(time.Duration(i)*time.Minute)), nil)
	}
	_ = s.CreateProfile(ctx, seedProfile("x", "t-2", base), nil)

	items, total, err := s.ListProfiles(ctx, "t-1", ProfileFilter{Skip: 1, Limit: 2})
	if err != nil {
		t.Fatalf("list returned error: %v", err)
	}
	if total != 4 || len(items) != 2 {
		t.Fatalf("unexpected page: total=%d len=%d", total, len(items))
	}
	if items[0].ID != "c" || items[1].ID != "b" {
		t.Fatalf("expected newest first, got %s,%s", items[0].ID, items[1].ID)
	}
}

func TestMemoryDeleteRequiresTenantAndVersion(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.CreateProfile(ctx, seedProfile("p-1", "t-1", time.Now()), nil)

	if err := s.DeleteProfile(ctx, "t-2", "p-1", 1, nil); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found for other tenant, got %v", err)
	}
	if err := s.DeleteProfile(ctx, "t-1", "p-1", 7, nil); !errors.Is(err, model.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	if err := s.DeleteProfile(ctx, "t-1", "p-1", 1, nil); err != nil {
		t.Fatalf("delete returned error: %v", err)
	}
	if _, err := s.GetProfile(ctx, "p-1"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected deleted profile to be gone, got %v", err)
	}
}

func TestMemoryLogsNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_ = s.AppendLog(ctx, &model.OperationLogEntry{ID: "1", ProfileID: "p", Timestamp: ts})
	_ = s.AppendLog(ctx, &model.OperationLogEntry{ID: "2", ProfileID: "p", Timestamp: ts.Add(time.Second)})
	_ = s.AppendLog(ctx, &model.OperationLogEntry{ID: "3", ProfileID: "p", Timestamp: ts.Add(time.Second)})

	entries, _, _ := s.ListLogs(ctx, LogFilter{ProfileID: "p"})
	if entries[0].ID != "3" || entries[1].ID != "2" || entries[2].ID != "1" {
		t.Fatalf("unexpected order: %s %s %s", entries[0].ID, entries[1].ID, entries[2].ID)
	}
}

func TestNormalizePage(t *testing.T) {
	cases := []struct{ skip, limit, wantSkip, wantLimit int }{
		{-1, 0, 0, DefaultLimit},
		{5, 5000, 5, MaxLimit},
		{0, 10, 0, 10},
	}
	for _, tc := range cases {
		skip, limit := NormalizePage(tc.skip, tc.limit)
		if skip != tc.wantSkip || limit != tc.wantLimit {
			t.Fatalf("NormalizePage(%d,%d) = %d,%d", tc.skip, tc.limit, skip, limit)
		}
	}
}
