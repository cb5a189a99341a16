package certificate

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type completionKey struct {
	kind        SourceKind
	sourceID    uint64
	recipientID uint64
}

type fakeContent struct {
	sources    map[uint64]Source
	templates  map[uint64]Template
	recipients map[uint64]Recipient
}

func (f *fakeContent) ResolveSource(_ context.Context, id uint64) (*Source, error) {
	if source, ok := f.sources[id]; ok {
		return &source, nil
	}
	return nil, nil
}

func (f *fakeContent) ResolveTemplate(_ context.Context, id uint64) (*Template, error) {
	if template, ok := f.templates[id]; ok {
		return &template, nil
	}
	return nil, nil
}

func (f *fakeContent) ResolveRecipient(_ context.Context, id uint64) (*Recipient, error) {
	if recipient, ok := f.recipients[id]; ok {
		return &recipient, nil
	}
	return nil, nil
}

type fakeOracle struct {
	completions map[completionKey]time.Time
}

func (f *fakeOracle) HasCompleted(_ context.Context, kind SourceKind, sourceID, recipientID uint64) (bool, error) {
	_, ok := f.completions[completionKey{kind, sourceID, recipientID}]
	return ok, nil
}

func (f *fakeOracle) CompletionTime(_ context.Context, kind SourceKind, sourceID, recipientID uint64) (time.Time, bool, error) {
	completedAt, ok := f.completions[completionKey{kind, sourceID, recipientID}]
	return completedAt, ok, nil
}

func (f *fakeOracle) ForEachCompletion(_ context.Context, kind SourceKind, fn func(Completion) error) error {
	for key, completedAt := range f.completions {
		if key.kind != kind {
			continue
		}
		err := fn(Completion{
			SourceID:    key.sourceID,
			RecipientID: key.recipientID,
			CompletedAt: completedAt,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

type captureNotifier struct {
	events []GeneratedEvent
}

func (n *captureNotifier) RecordGenerated(_ context.Context, event GeneratedEvent) {
	n.events = append(n.events, event)
}

type staticLinks struct{}

func (staticLinks) CertificatePDFURL(templateID, sourceID, recipientID, viewerID uint64, kind SourceKind) string {
	if viewerID == 0 {
		viewerID = recipientID
	}
	return fmt.Sprintf("https://lms.test/certificates/%d/pdf?%s=%d&user=%d&viewer=%d", templateID, kind, sourceID, recipientID, viewerID)
}

func (staticLinks) VerificationURL(csuid string) string {
	return "https://lms.test/verify/" + csuid
}

func (staticLinks) QRImageURL(target string) string {
	return "https://qr.test/?text=" + target
}

type testEnv struct {
	content  *fakeContent
	oracle   *fakeOracle
	notifier *captureNotifier
	store    *Store
	engine   *Engine
	backfill *Backfill
	db       *gorm.DB
	now      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:certverify_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	env := &testEnv{
		content: &fakeContent{
			sources:    map[uint64]Source{},
			templates:  map[uint64]Template{},
			recipients: map[uint64]Recipient{},
		},
		oracle:   &fakeOracle{completions: map[completionKey]time.Time{}},
		notifier: &captureNotifier{},
		db:       db,
		now:      time.Unix(1756700000, 0).UTC(),
	}

	store, err := NewStore(StoreConfig{
		Database: db,
		Content:  env.content,
		Oracle:   env.oracle,
		Notifier: env.notifier,
		Clock:    func() time.Time { return env.now },
	})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	env.store = store

	engine, err := NewEngine(EngineConfig{
		Content: env.content,
		Oracle:  env.oracle,
		Store:   store,
		Links:   staticLinks{},
	})
	if err != nil {
		t.Fatalf("failed to construct engine: %v", err)
	}
	env.engine = engine

	backfill, err := NewBackfill(BackfillConfig{
		Content: env.content,
		Oracle:  env.oracle,
		Store:   store,
	})
	if err != nil {
		t.Fatalf("failed to construct backfill: %v", err)
	}
	env.backfill = backfill

	return env
}

// seedCourseScenario installs the stock fixture: course 456 with standard
// template 123 and pocket template 999, completed by recipient 1.
func (env *testEnv) seedCourseScenario() {
	env.content.sources[456] = Source{
		ID:                 456,
		Kind:               SourceKindCourse,
		Title:              "Advanced Widgets",
		URL:                "https://lms.test/courses/456",
		StandardTemplateID: 123,
		PocketTemplateID:   999,
	}
	env.content.templates[123] = Template{ID: 123, Title: "Completion Certificate"}
	env.content.templates[999] = Template{ID: 999, Title: "Pocket Certificate"}
	env.content.recipients[1] = Recipient{ID: 1, DisplayName: "Jane Doe", Email: "jane@example.com"}
	env.oracle.completions[completionKey{SourceKindCourse, 456, 1}] = time.Unix(1756000000, 0).UTC()
}

func (env *testEnv) recordCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	if err := env.db.Model(&Record{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count records: %v", err)
	}
	return count
}
