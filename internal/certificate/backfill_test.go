package certificate

import (
	"context"
	"testing"
	"time"
)

func TestBackfillCreatesRetroactiveRecords(t *testing.T) {
	env := newTestEnv(t)
	env.seedCourseScenario()
	env.content.sources[77] = Source{
		ID:                 77,
		Kind:               SourceKindQuiz,
		Title:              "Module Quiz",
		StandardTemplateID: 123,
		CourseID:           456,
	}
	env.content.recipients[2] = Recipient{ID: 2, DisplayName: "Sam Roe", Email: "sam@example.com"}
	env.oracle.completions[completionKey{SourceKindQuiz, 77, 1}] = time.Unix(1756100000, 0).UTC()
	env.oracle.completions[completionKey{SourceKindCourse, 456, 2}] = time.Unix(1756200000, 0).UTC()

	result, err := env.backfill.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Created != 3 {
		t.Fatalf("expected 3 created records, got %d", result.Created)
	}
	if env.recordCount(t) != 3 {
		t.Fatalf("expected 3 persisted records, got %d", env.recordCount(t))
	}
	if len(env.notifier.events) != 0 {
		t.Fatalf("retroactive records must not notify, got %d events", len(env.notifier.events))
	}

	record, err := env.store.Get(context.Background(), 456, 1, SourceKindCourse)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record == nil {
		t.Fatalf("expected backfilled record")
	}
	if !record.IsRetroactive {
		t.Fatalf("backfilled record must be marked retroactive")
	}
	if record.CompletedAt().Unix() != 1756000000 {
		t.Fatalf("expected oracle completion time, got %v", record.CompletedAt())
	}
}

func TestBackfillRerunCreatesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.seedCourseScenario()

	first, err := env.backfill.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Created != 1 {
		t.Fatalf("expected 1 created record, got %d", first.Created)
	}

	second, err := env.backfill.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Created != 0 {
		t.Fatalf("re-run must create nothing, got %d", second.Created)
	}
	if env.recordCount(t) != 1 {
		t.Fatalf("expected 1 persisted record, got %d", env.recordCount(t))
	}
}

func TestBackfillSkipsUnprocessableRows(t *testing.T) {
	env := newTestEnv(t)
	env.seedCourseScenario()

	// Source gone from the content system.
	env.oracle.completions[completionKey{SourceKindCourse, 900, 1}] = time.Unix(1756300000, 0).UTC()
	// Source exists but under a different kind.
	env.oracle.completions[completionKey{SourceKindQuiz, 456, 1}] = time.Unix(1756300000, 0).UTC()
	// Source has no template assigned.
	env.content.sources[901] = Source{ID: 901, Kind: SourceKindCourse, Title: "No Certificate"}
	env.oracle.completions[completionKey{SourceKindCourse, 901, 1}] = time.Unix(1756300000, 0).UTC()
	// Zero ids never encode.
	env.oracle.completions[completionKey{SourceKindCourse, 456, 0}] = time.Unix(1756300000, 0).UTC()

	result, err := env.backfill.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Created != 1 {
		t.Fatalf("only the processable row should create a record, got %d", result.Created)
	}
	if env.recordCount(t) != 1 {
		t.Fatalf("expected 1 persisted record, got %d", env.recordCount(t))
	}
}

func TestBackfillSkipsExistingRecords(t *testing.T) {
	env := newTestEnv(t)
	env.seedCourseScenario()

	if _, _, err := env.store.Create(context.Background(), 123, 456, 1, SourceKindCourse, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env.notifier.events = nil

	result, err := env.backfill.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Created != 0 {
		t.Fatalf("existing record must not be recreated, got %d", result.Created)
	}
	if len(env.notifier.events) != 0 {
		t.Fatalf("backfill must stay silent, got %d events", len(env.notifier.events))
	}
}

func TestBackfillStopsOnCancelledContext(t *testing.T) {
	env := newTestEnv(t)
	env.seedCourseScenario()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := env.backfill.Run(ctx); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
	if env.recordCount(t) != 0 {
		t.Fatalf("cancelled run must not create records")
	}
}
