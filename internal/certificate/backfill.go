package certificate

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

const (
	opBackfillNew = "certificate.backfill.new"
	opBackfillRun = "certificate.backfill.run"
)

// BackfillConfig describes the dependencies of the retroactive backfill job.
type BackfillConfig struct {
	Content ContentRepository
	Oracle  CompletionOracle
	Store   *Store
	Logger  *zap.Logger
}

// Backfill scans historical completions and materializes missing records as
// retroactive, which suppresses notification. Every per-row step is
// independently idempotent, so the job is safe to interrupt and re-run.
type Backfill struct {
	content ContentRepository
	oracle  CompletionOracle
	store   *Store
	logger  *zap.Logger
}

// BackfillResult reports how many records one pass actually created.
type BackfillResult struct {
	Created int
}

// NewBackfill constructs the backfill job.
func NewBackfill(cfg BackfillConfig) (*Backfill, error) {
	if cfg.Content == nil {
		return nil, newServiceError(opBackfillNew, "missing_content", errMissingContent)
	}
	if cfg.Oracle == nil {
		return nil, newServiceError(opBackfillNew, "missing_oracle", errMissingOracle)
	}
	if cfg.Store == nil {
		return nil, newServiceError(opBackfillNew, "missing_store", errMissingStore)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Backfill{
		content: cfg.Content,
		oracle:  cfg.Oracle,
		store:   cfg.Store,
		logger:  logger,
	}, nil
}

// Run walks every historical completion across all source kinds and creates
// the records that are still missing. Rows that cannot be processed (source
// gone, no template assigned, unencodable ids) are skipped, not fatal; a
// full pass completes regardless. Re-running after a complete pass creates
// nothing and returns zero.
func (b *Backfill) Run(ctx context.Context) (BackfillResult, error) {
	result := BackfillResult{}

	for _, kind := range AllSourceKinds() {
		err := b.oracle.ForEachCompletion(ctx, kind, func(completion Completion) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if b.processCompletion(ctx, kind, completion) {
				result.Created++
			}
			return nil
		})
		if err != nil {
			b.logger.Error("backfill scan failed",
				zap.String("operation", opBackfillRun),
				zap.String("source_type", kind.String()),
				zap.Error(err))
			return result, newServiceError(opBackfillRun, "scan_failed", err)
		}
	}

	b.logger.Info("backfill pass complete",
		zap.String("operation", opBackfillRun),
		zap.Int("created", result.Created))
	return result, nil
}

// processCompletion materializes one historical completion, reporting
// whether a record was actually created. Unprocessable rows are skipped.
func (b *Backfill) processCompletion(ctx context.Context, kind SourceKind, completion Completion) bool {
	if completion.SourceID == 0 || completion.RecipientID == 0 {
		return false
	}

	existing, err := b.store.Get(ctx, completion.SourceID, completion.RecipientID, kind)
	if err != nil {
		b.skip(kind, completion, "lookup_failed", err)
		return false
	}
	if existing != nil {
		return false
	}

	source, err := b.content.ResolveSource(ctx, completion.SourceID)
	if err != nil {
		b.skip(kind, completion, "source_lookup_failed", err)
		return false
	}
	if source == nil || source.Kind != kind {
		return false
	}
	if source.StandardTemplateID == 0 {
		// No template assigned; nothing to certify.
		return false
	}

	_, created, err := b.store.Create(ctx, source.StandardTemplateID, completion.SourceID, completion.RecipientID, kind, true)
	if err != nil {
		if errors.Is(err, ErrCannotEncode) {
			return false
		}
		b.skip(kind, completion, "create_failed", err)
		return false
	}
	return created
}

func (b *Backfill) skip(kind SourceKind, completion Completion, reason string, err error) {
	b.logger.Warn("backfill row skipped",
		zap.String("operation", opBackfillRun),
		zap.String("reason", reason),
		zap.String("source_type", kind.String()),
		zap.Uint64("source_id", completion.SourceID),
		zap.Uint64("recipient_id", completion.RecipientID),
		zap.Error(err))
}
