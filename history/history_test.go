package history

import (
	"errors"
	"testing"
	"time"

	"go.aimuz.me/holdtalk/internal/types"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func record(id string, started time.Time) types.SessionRecord {
	return types.SessionRecord{
		ID:         id,
		StartedAt:  started,
		FinishedAt: started.Add(5 * time.Second),
		Outcome:    types.OutcomeCompleted,
		Transcript: "turn on the light",
		Reply:      "Sure, turning it on",
	}
}

func TestPutGet(t *testing.T) {
	s := openMemory(t)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	r := record("a", base)
	if err := s.Put(r); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get("a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Transcript != r.Transcript || got.Outcome != r.Outcome || !got.StartedAt.Equal(base) {
		t.Fatalf("Get = %+v", got)
	}

	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) = %v, want ErrNotFound", err)
	}
	if err := s.Put(types.SessionRecord{}); err == nil {
		t.Fatal("Put accepted empty id")
	}
}

func TestPutReplacesSameID(t *testing.T) {
	s := openMemory(t)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	r := record("a", base)
	s.Put(r)
	r.StartedAt = base.Add(time.Minute)
	r.Outcome = types.OutcomeFailed
	if err := s.Put(r); err != nil {
		t.Fatalf("Put: %v", err)
	}

	recent, err := s.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 || recent[0].Outcome != types.OutcomeFailed {
		t.Fatalf("Recent = %+v", recent)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	s := openMemory(t)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"first", "second", "third"} {
		if err := s.Put(record(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	tests := []struct {
		n    int
		want []string
	}{
		{0, nil},
		{2, []string{"third", "second"}},
		{10, []string{"third", "second", "first"}},
	}
	for _, tt := range tests {
		got, err := s.Recent(tt.n)
		if err != nil {
			t.Fatalf("Recent(%d): %v", tt.n, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("Recent(%d) returned %d records, want %d", tt.n, len(got), len(tt.want))
		}
		for i := range got {
			if got[i].ID != tt.want[i] {
				t.Errorf("Recent(%d)[%d] = %s, want %s", tt.n, i, got[i].ID, tt.want[i])
			}
		}
	}
}

func TestPrune(t *testing.T) {
	s := openMemory(t)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	s.Put(record("old", base))
	s.Put(record("new", base.Add(48*time.Hour)))

	n, err := s.Prune(base.Add(24 * time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}
	if _, err := s.Get("old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(old) = %v, want ErrNotFound", err)
	}
	if _, err := s.Get("new"); err != nil {
		t.Fatalf("Get(new): %v", err)
	}
}
