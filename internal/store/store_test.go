package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/procurepro/tbe/internal/pkg/errors"
)

func newRecord(id string, created time.Time) *Record {
	return &Record{
		ID:          id,
		RFQID:       "rfq-1",
		Fingerprint: "abc",
		Status:      StatusCompleted,
		BidCount:    2,
		CreatedAt:   created,
		Outcome:     json.RawMessage(`{"recommended_bid_id":"A"}`),
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"3f1c2a9e-8d4b-4c55-9a0e-2b7f6c1d0e9a", true},
		{"run_1", true},
		{"", false},
		{"../etc/passwd", false},
		{"-leading", false},
		{"has space", false},
		{"a.json", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := ValidateID(tt.id)
			if tt.valid && err != nil {
				t.Errorf("expected %q to be valid, got error: %v", tt.id, err)
			}
			if !tt.valid && err == nil {
				t.Errorf("expected %q to be invalid, got no error", tt.id)
			}
		})
	}
}

func TestRecordValidate(t *testing.T) {
	r := newRecord("r1", time.Now())
	if err := r.Validate(); err != nil {
		t.Errorf("expected valid record, got error: %v", err)
	}

	r.Status = "running"
	if err := r.Validate(); err == nil {
		t.Error("expected error for unknown status")
	}

	r = newRecord("r1", time.Time{})
	if err := r.Validate(); err == nil {
		t.Error("expected error for zero creation time")
	}
}

func testStorage(t *testing.T, s Storage) {
	t.Helper()

	r := newRecord("r1", time.Now().UTC().Truncate(time.Second))
	if err := s.Save(r); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !s.Exists("r1") {
		t.Error("Exists() = false after Save")
	}

	got, err := s.Load("r1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.RFQID != "rfq-1" || !got.CreatedAt.Equal(r.CreatedAt) || string(got.Outcome) == "" {
		t.Errorf("Load() = %+v", got)
	}

	if _, err := s.Load("missing"); !apperrors.IsNotFound(err) {
		t.Errorf("Load(missing) error = %v, want not found", err)
	}

	_ = s.Save(newRecord("r2", time.Now()))
	all, err := s.LoadAll()
	if err != nil || len(all) != 2 {
		t.Errorf("LoadAll() = %d records, %v", len(all), err)
	}

	if err := s.Delete("r1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if s.Exists("r1") {
		t.Error("Exists() = true after Delete")
	}
	if err := s.Delete("r1"); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestMemoryStorage(t *testing.T) {
	testStorage(t, NewMemoryStorage())
}

func TestFileStorage(t *testing.T) {
	dir := t.TempDir()
	testStorage(t, NewFileStorage(dir))

	// Stray files are ignored.
	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644)
	all, err := NewFileStorage(dir).LoadAll()
	if err != nil || len(all) != 1 {
		t.Errorf("LoadAll() = %d records, %v; want 1", len(all), err)
	}
}

func TestFileStorage_RejectsUnsafeID(t *testing.T) {
	s := NewFileStorage(t.TempDir())
	if err := s.Save(newRecord("../escape", time.Now())); !apperrors.IsValidation(err) {
		t.Errorf("Save() error = %v, want validation error", err)
	}
}

func TestFileStorage_MissingDir(t *testing.T) {
	s := NewFileStorage(filepath.Join(t.TempDir(), "absent"))
	all, err := s.LoadAll()
	if err != nil || len(all) != 0 {
		t.Errorf("LoadAll() = %v, %v", all, err)
	}
}

func TestService(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(ServiceConfig{})
	if err != nil {
		t.Fatal(err)
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		r := newRecord(id, base.Add(time.Duration(i)*time.Hour))
		if id == "mid" {
			r.RFQID = "rfq-2"
		}
		if err := svc.Put(ctx, r); err != nil {
			t.Fatalf("Put(%s) error = %v", id, err)
		}
	}

	list := svc.List(ctx, ListFilter{})
	if len(list) != 3 || list[0].ID != "new" || list[2].ID != "old" {
		t.Errorf("List() order = %v", list)
	}
	if list[0].Outcome != nil {
		t.Error("List() should omit outcomes")
	}
	if got := svc.List(ctx, ListFilter{RFQID: "rfq-2"}); len(got) != 1 || got[0].ID != "mid" {
		t.Errorf("List(rfq-2) = %v", got)
	}
	if got := svc.List(ctx, ListFilter{Limit: 2}); len(got) != 2 {
		t.Errorf("List(limit 2) = %d records", len(got))
	}

	if _, err := svc.Get(ctx, "mid"); err != nil {
		t.Errorf("Get() error = %v", err)
	}
	if err := svc.Delete(ctx, "mid"); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
	if err := svc.Delete(ctx, "mid"); !apperrors.IsNotFound(err) {
		t.Errorf("Delete(missing) error = %v, want not found", err)
	}

	if err := svc.Put(ctx, &Record{ID: "bad"}); err == nil {
		t.Error("Put() accepted an invalid record")
	}
}

func TestService_MaxRecords(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(ServiceConfig{StoragePath: t.TempDir(), MaxRecords: 2})
	if err != nil {
		t.Fatal(err)
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := svc.Put(ctx, newRecord(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}
	if svc.Count() != 2 {
		t.Errorf("Count() = %d, want 2", svc.Count())
	}
	if _, err := svc.Get(ctx, "a"); !apperrors.IsNotFound(err) {
		t.Error("oldest record should have been pruned")
	}
}

func TestService_ReloadsFromDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, _ := NewService(ServiceConfig{StoragePath: dir})
	_ = first.Put(ctx, newRecord("persisted", time.Now()))

	second, err := NewService(ServiceConfig{StoragePath: dir})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := second.Get(ctx, "persisted"); err != nil {
		t.Errorf("record not reloaded: %v", err)
	}
}
