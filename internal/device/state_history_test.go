package device

import (
	"context"
	"testing"
	"time"
)

func TestStateHistoryRecordAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	states := []string{"OFF", "STANDBY", "ON"}
	for _, s := range states {
		if err := repo.RecordStateChange(ctx, "tv-1", s, StateHistorySourceProbe); err != nil {
			t.Fatalf("RecordStateChange(%s) error: %v", s, err)
		}
	}

	entries, err := repo.GetHistory(ctx, "tv-1", 10)
	if err != nil {
		t.Fatalf("GetHistory() error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("GetHistory() returned %d entries, want 3", len(entries))
	}
	// Newest first.
	if entries[0].PowerState != "ON" {
		t.Errorf("entries[0].PowerState = %q, want ON", entries[0].PowerState)
	}
	if entries[0].Source != StateHistorySourceProbe {
		t.Errorf("entries[0].Source = %q, want %q", entries[0].Source, StateHistorySourceProbe)
	}
	if entries[0].RecordedAt.IsZero() {
		t.Error("entries[0].RecordedAt is zero")
	}
}

func TestStateHistoryValidation(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	if err := repo.RecordStateChange(ctx, "", "ON", StateHistorySourceProbe); err == nil {
		t.Error("RecordStateChange() with empty device id: expected error")
	}
	if err := repo.RecordStateChange(ctx, "tv-1", "", StateHistorySourceProbe); err == nil {
		t.Error("RecordStateChange() with empty state: expected error")
	}
	if _, err := repo.GetHistory(ctx, "", 10); err == nil {
		t.Error("GetHistory() with empty device id: expected error")
	}
}

func TestStateHistoryLimitClamped(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := repo.RecordStateChange(ctx, "tv-1", "ON", StateHistorySourceSocket); err != nil {
			t.Fatalf("RecordStateChange() error: %v", err)
		}
	}

	entries, err := repo.GetHistory(ctx, "tv-1", -1)
	if err != nil {
		t.Fatalf("GetHistory() error: %v", err)
	}
	if len(entries) != 5 {
		t.Errorf("GetHistory() with default limit returned %d entries, want 5", len(entries))
	}

	entries, err = repo.GetHistory(ctx, "tv-1", 2)
	if err != nil {
		t.Fatalf("GetHistory() error: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("GetHistory(limit=2) returned %d entries, want 2", len(entries))
	}
}

func TestStateHistoryPrune(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	// Insert an old entry directly.
	old := time.Now().UTC().Add(-48 * time.Hour).Format(time.RFC3339)
	if _, err := db.Exec(
		"INSERT INTO power_state_history (device_id, power_state, source, recorded_at) VALUES (?, ?, ?, ?)",
		"tv-1", "OFF", StateHistorySourceProbe, old,
	); err != nil {
		t.Fatalf("inserting old entry: %v", err)
	}
	if err := repo.RecordStateChange(ctx, "tv-1", "ON", StateHistorySourceProbe); err != nil {
		t.Fatalf("RecordStateChange() error: %v", err)
	}

	deleted, err := repo.PruneHistory(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PruneHistory() error: %v", err)
	}
	if deleted != 1 {
		t.Errorf("PruneHistory() deleted %d rows, want 1", deleted)
	}

	if _, err := repo.PruneHistory(ctx, 0); err == nil {
		t.Error("PruneHistory(0) expected error")
	}
}
