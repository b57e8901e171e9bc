package audit

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

// -- Mock Repository --

type mockRepo struct {
	entries []*Entry
	failing bool
}

func (m *mockRepo) Insert(_ context.Context, entry *Entry) error {
	if m.failing {
		return fmt.Errorf("insert failed")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Entry, error) {
	for _, e := range m.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockRepo) Search(_ context.Context, params map[string]string, limit, offset int) ([]*Entry, int, error) {
	var result []*Entry
	for _, e := range m.entries {
		if v, ok := params["action"]; ok && e.Action != v {
			continue
		}
		if v, ok := params["outcome"]; ok && e.Outcome != v {
			continue
		}
		result = append(result, e)
	}
	return result, len(result), nil
}

func actorContext(actorID uuid.UUID) context.Context {
	return auth.ContextWithActor(context.Background(), actorID, []string{"doctor"}, "sid-1", "10.1.2.3")
}

func TestSuccessRecordsActorAndOrigin(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)
	actorID := uuid.New()
	entityID := uuid.New()

	svc.Success(actorContext(actorID), "admission.create", "admission", &entityID, "patient admitted to bed 12-A")

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	e := repo.entries[0]
	if e.ActorID == nil || *e.ActorID != actorID {
		t.Errorf("expected actor %s, got %v", actorID, e.ActorID)
	}
	if e.Origin != "10.1.2.3" {
		t.Errorf("expected origin 10.1.2.3, got %q", e.Origin)
	}
	if e.Outcome != OutcomeSuccess {
		t.Errorf("expected success outcome, got %q", e.Outcome)
	}
	if e.ErrorCode != nil {
		t.Errorf("expected no error code, got %v", *e.ErrorCode)
	}
}

func TestFailureRecordsErrorCode(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	svc.Failure(actorContext(uuid.New()), "admission.create", "admission", nil, "bed already occupied", "conflict")

	e := repo.entries[0]
	if e.Outcome != OutcomeError {
		t.Errorf("expected error outcome, got %q", e.Outcome)
	}
	if e.ErrorCode == nil || *e.ErrorCode != "conflict" {
		t.Errorf("expected error code conflict, got %v", e.ErrorCode)
	}
}

func TestRecordWithoutActor(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	svc.Failure(context.Background(), "login", "staff_account", nil, "login attempt for ghost", "unauthorized")

	e := repo.entries[0]
	if e.ActorID != nil {
		t.Errorf("expected nil actor for anonymous action, got %v", e.ActorID)
	}
}

func TestRecordTruncatesDescription(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	long := strings.Repeat("x", 1200)
	svc.Success(actorContext(uuid.New()), "patient.search", "patient", nil, long)

	if got := len(repo.entries[0].Description); got != maxDescriptionLen {
		t.Errorf("expected description truncated to %d, got %d", maxDescriptionLen, got)
	}
}

func TestRecordTruncatesOnRuneBoundary(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	// Three-byte runes do not divide the cap evenly, so a byte-offset cut
	// would land mid-rune.
	long := strings.Repeat("€", 400)
	svc.Success(actorContext(uuid.New()), "patient.search", "patient", nil, long)

	desc := repo.entries[0].Description
	if len(desc) > maxDescriptionLen {
		t.Errorf("description length = %d, want at most %d", len(desc), maxDescriptionLen)
	}
	if !utf8.ValidString(desc) {
		t.Error("truncated description is not valid UTF-8")
	}
	if len(desc) != maxDescriptionLen-maxDescriptionLen%3 {
		t.Errorf("description length = %d, want %d (last whole rune kept)", len(desc), maxDescriptionLen-maxDescriptionLen%3)
	}
}

func TestRecordSwallowsRepoErrors(t *testing.T) {
	repo := &mockRepo{failing: true}
	svc := NewService(repo)

	// Must not panic and must not propagate the failure.
	svc.Success(actorContext(uuid.New()), "patient.read", "patient", nil, "viewed record")
	if len(repo.entries) != 0 {
		t.Fatal("expected no entries on failing repo")
	}
}

func TestSearchEntriesFilters(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)
	ctx := actorContext(uuid.New())

	svc.Success(ctx, "admission.create", "admission", nil, "admitted")
	svc.Success(ctx, "patient.create", "patient", nil, "registered")
	svc.Failure(ctx, "admission.create", "admission", nil, "bed occupied", "conflict")

	items, total, err := svc.SearchEntries(ctx, map[string]string{"action": "admission.create", "outcome": OutcomeError}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("expected 1 match, got %d", total)
	}
	if items[0].ErrorCode == nil || *items[0].ErrorCode != "conflict" {
		t.Errorf("unexpected entry matched: %+v", items[0])
	}
}
