package lms

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/wisdmlabs/certverify/internal/certificate"
	"gorm.io/gorm"
)

func newTestRepository(t *testing.T) (*Repository, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:lms_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&SourceRow{}, &TemplateRow{}, &RecipientRow{}, &CompletionRow{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	repository, err := NewRepository(db)
	if err != nil {
		t.Fatalf("failed to construct repository: %v", err)
	}
	return repository, db
}

func seedContent(t *testing.T, db *gorm.DB) {
	t.Helper()

	rows := []interface{}{
		&SourceRow{ID: 456, Kind: "course", Title: "Advanced Widgets", URL: "https://lms.test/courses/456", StandardTemplateID: 123, PocketTemplateID: 999},
		&SourceRow{ID: 77, Kind: "quiz", Title: "Module Quiz", StandardTemplateID: 123, CourseID: 456},
		&SourceRow{ID: 800, Kind: "lesson", Title: "Intro Lesson"},
		&TemplateRow{ID: 123, Title: "Completion Certificate"},
		&RecipientRow{ID: 1, DisplayName: "Jane Doe", Email: "jane@example.com"},
		&CompletionRow{SourceKind: "course", SourceID: 456, RecipientID: 1, CompletedAtSeconds: 1756000000},
		&CompletionRow{SourceKind: "quiz", SourceID: 77, RecipientID: 1, CompletedAtSeconds: 1756100000},
	}
	for _, row := range rows {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("failed to seed row %+v: %v", row, err)
		}
	}
}

func TestResolveSource(t *testing.T) {
	repository, db := newTestRepository(t)
	seedContent(t, db)

	source, err := repository.ResolveSource(context.Background(), 456)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source == nil {
		t.Fatalf("expected source")
	}
	if source.Kind != certificate.SourceKindCourse || source.Title != "Advanced Widgets" {
		t.Fatalf("unexpected source: %+v", source)
	}
	if source.StandardTemplateID != 123 || source.PocketTemplateID != 999 {
		t.Fatalf("unexpected template assignments: %+v", source)
	}

	// Kind values come through verbatim even when the core does not know
	// them.
	lesson, err := repository.ResolveSource(context.Background(), 800)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lesson == nil || lesson.Kind.Known() {
		t.Fatalf("expected verbatim unknown kind, got %+v", lesson)
	}

	missing, err := repository.ResolveSource(context.Background(), 999999)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for absent source, got %+v", missing)
	}
}

func TestResolveTemplateAndRecipient(t *testing.T) {
	repository, db := newTestRepository(t)
	seedContent(t, db)

	template, err := repository.ResolveTemplate(context.Background(), 123)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if template == nil || template.Title != "Completion Certificate" {
		t.Fatalf("unexpected template: %+v", template)
	}
	if absent, err := repository.ResolveTemplate(context.Background(), 777); err != nil || absent != nil {
		t.Fatalf("expected nil for absent template, got %+v err %v", absent, err)
	}

	recipient, err := repository.ResolveRecipient(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recipient == nil || recipient.DisplayName != "Jane Doe" || recipient.Email != "jane@example.com" {
		t.Fatalf("unexpected recipient: %+v", recipient)
	}
	if absent, err := repository.ResolveRecipient(context.Background(), 42); err != nil || absent != nil {
		t.Fatalf("expected nil for absent recipient, got %+v err %v", absent, err)
	}
}

func TestCompletionQueries(t *testing.T) {
	repository, db := newTestRepository(t)
	seedContent(t, db)

	completed, err := repository.HasCompleted(context.Background(), certificate.SourceKindCourse, 456, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !completed {
		t.Fatalf("expected completion")
	}

	// The kind is part of the completion identity.
	completed, err = repository.HasCompleted(context.Background(), certificate.SourceKindQuiz, 456, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if completed {
		t.Fatalf("kind mismatch must not count as completed")
	}

	completedAt, known, err := repository.CompletionTime(context.Background(), certificate.SourceKindCourse, 456, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !known || completedAt.Unix() != 1756000000 {
		t.Fatalf("unexpected completion time: known=%v at=%v", known, completedAt)
	}

	_, known, err = repository.CompletionTime(context.Background(), certificate.SourceKindCourse, 456, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if known {
		t.Fatalf("expected unknown completion time")
	}
}

func TestForEachCompletionStreamsByKind(t *testing.T) {
	repository, db := newTestRepository(t)
	seedContent(t, db)

	// Enough rows to span multiple batches.
	for i := uint64(1); i <= 450; i++ {
		row := &CompletionRow{SourceKind: "course", SourceID: 5000 + i, RecipientID: 1, CompletedAtSeconds: 1756000000}
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("failed to seed bulk row: %v", err)
		}
	}

	var seen int
	err := repository.ForEachCompletion(context.Background(), certificate.SourceKindCourse, func(completion certificate.Completion) error {
		if completion.SourceID == 0 || completion.RecipientID == 0 {
			t.Fatalf("unexpected zero ids in %+v", completion)
		}
		seen++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != 451 {
		t.Fatalf("expected 451 course completions, got %d", seen)
	}

	var quizzes int
	err = repository.ForEachCompletion(context.Background(), certificate.SourceKindQuiz, func(certificate.Completion) error {
		quizzes++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quizzes != 1 {
		t.Fatalf("expected 1 quiz completion, got %d", quizzes)
	}
}

func TestForEachCompletionStopsOnCallbackError(t *testing.T) {
	repository, db := newTestRepository(t)
	seedContent(t, db)

	sentinel := errors.New("stop")
	err := repository.ForEachCompletion(context.Background(), certificate.SourceKindCourse, func(certificate.Completion) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected callback error to propagate, got %v", err)
	}
}
