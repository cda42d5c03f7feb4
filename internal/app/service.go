// Package service orchestrates a prediction batch end to end:
// validation, normalization, chunked dispatch, reconciliation, and the
// optional persistence side channels.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/merchkit/stockcast/internal/adapters/audit"
	"github.com/merchkit/stockcast/internal/adapters/usagelog"
	"github.com/merchkit/stockcast/internal/domain/dispatch"
	"github.com/merchkit/stockcast/internal/domain/model"
	"github.com/merchkit/stockcast/internal/domain/normalize"
	"github.com/merchkit/stockcast/internal/domain/reconcile"
	"github.com/merchkit/stockcast/pkg/logger"
	"github.com/merchkit/stockcast/pkg/metrics"
)

// maxBatchSize caps the number of items accepted in one batch.
const maxBatchSize = 1000

// Recorder persists one successful prediction.
type Recorder interface {
	Record(ctx context.Context, result model.ItemResult, modelVersion string) error
}

// UsageLog appends one per-batch usage entry, fire and forget.
type UsageLog interface {
	Append(ctx context.Context, entry usagelog.Entry)
}

// AuditStore appends one encrypted per-batch audit record.
type AuditStore interface {
	Append(ctx context.Context, record audit.Record) error
}

// Service runs prediction batches. The side channels (recorder, usage
// log, audit) are optional; a Service without them only predicts.
// Admission control happens before the service is invoked; rejecting a
// tenant is the caller's call.
type Service struct {
	normalizer *normalize.Normalizer
	dispatcher *dispatch.Dispatcher
	reconciler *reconcile.Reconciler

	recorder Recorder
	usage    UsageLog
	auditor  AuditStore

	tenantID     string
	modelVersion string
	now          func() time.Time

	log logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithRecorder persists successful predictions.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithUsageLog appends per-batch usage entries.
func WithUsageLog(u UsageLog) Option {
	return func(s *Service) {
		s.usage = u
	}
}

// WithAuditStore appends encrypted per-batch audit records.
func WithAuditStore(a AuditStore) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

// WithTenant sets the tenant identity used for usage accounting.
func WithTenant(tenantID string) Option {
	return func(s *Service) {
		if tenantID != "" {
			s.tenantID = tenantID
		}
	}
}

// WithModelVersion labels persisted predictions.
func WithModelVersion(version string) Option {
	return func(s *Service) {
		s.modelVersion = version
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service over the three pipeline stages.
func New(normalizer *normalize.Normalizer, dispatcher *dispatch.Dispatcher, opts ...Option) *Service {
	s := &Service{
		normalizer: normalizer,
		dispatcher: dispatcher,
		reconciler: reconcile.New(),
		tenantID:   "default",
		now:        time.Now,
		log:        logger.Get().Named("service"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Predict runs one batch and returns exactly one result per input item,
// in input order. Item-level and chunk-level failures come back as
// error results; only an invalid batch returns an error.
func (s *Service) Predict(ctx context.Context, items []model.InputItem) ([]model.ItemResult, error) {
	if err := validate(items); err != nil {
		metrics.RecordBatchRejected()
		return nil, err
	}

	metrics.RecordBatch(len(items))

	rows := s.normalizer.Normalize(ctx, items)
	results := make([]model.ItemResult, len(rows))

	cancelled := false
	for _, chunk := range s.dispatcher.Chunks(rows) {
		var chunkResults []model.ItemResult

		switch {
		case cancelled || ctx.Err() != nil:
			cancelled = true
			chunkResults = s.reconciler.CancelChunk(chunk.Rows)
		default:
			predictions, err := s.dispatcher.Dispatch(ctx, chunk)
			if err != nil {
				s.log.Warn(ctx, "chunk dispatch failed",
					logger.Int("start_index", chunk.StartIndex),
					logger.Int("rows", len(chunk.Rows)),
					logger.Error(err))
				metrics.RecordErrorByComponent("dispatch", "transport")
				chunkResults = s.reconciler.FailChunk(chunk.Rows, err)
			} else {
				chunkResults = s.reconciler.Reconcile(chunk.Rows, predictions)
			}
		}

		for j, res := range chunkResults {
			results[chunk.StartIndex+j] = res
			if res.OK {
				metrics.RecordItemOutcome("success")
			} else {
				metrics.RecordItemOutcome("error")
			}
		}
	}

	return results, nil
}

// PredictAndPersist runs Predict and then feeds the side channels:
// every successful result goes to the recorder, and the batch as a
// whole to the usage log and audit trail. Side-channel failures are
// logged, never propagated.
func (s *Service) PredictAndPersist(ctx context.Context, items []model.InputItem) ([]model.ItemResult, error) {
	started := s.now()
	batchID := uuid.NewString()

	results, err := s.Predict(ctx, items)
	if err != nil {
		return nil, err
	}

	successes, failures := 0, 0
	for i := range results {
		if !results[i].OK {
			failures++
			continue
		}
		successes++
		if s.recorder != nil {
			if err := s.recorder.Record(ctx, results[i], s.modelVersion); err != nil {
				s.log.Warn(ctx, "persist prediction failed",
					logger.String("batch", batchID),
					logger.String("item_id", results[i].ItemID),
					logger.Error(err))
				metrics.RecordErrorByComponent("recorder", "insert")
			}
		}
	}

	finished := s.now()
	if s.usage != nil {
		s.usage.Append(ctx, usagelog.Entry{
			BatchID:      batchID,
			TenantID:     s.tenantID,
			ItemCount:    len(items),
			SuccessCount: successes,
			FailureCount: failures,
			Transport:    s.dispatcher.TransportName(),
			DurationMS:   finished.Sub(started).Milliseconds(),
			At:           finished.UTC(),
		})
	}
	if s.auditor != nil {
		record := audit.Record{
			BatchID:      batchID,
			TenantID:     s.tenantID,
			ItemCount:    len(items),
			SuccessCount: successes,
			FailureCount: failures,
			ModelVersion: s.modelVersion,
			StartedAt:    started.UTC(),
			FinishedAt:   finished.UTC(),
		}
		if err := s.auditor.Append(ctx, record); err != nil {
			s.log.Warn(ctx, "append audit record failed",
				logger.String("batch", batchID), logger.Error(err))
			metrics.RecordErrorByComponent("audit", "append")
		}
	}

	return results, nil
}

// validate rejects a batch before any work starts.
func validate(items []model.InputItem) error {
	if len(items) == 0 {
		return &ValidationError{Reason: "batch is empty"}
	}
	if len(items) > maxBatchSize {
		return &ValidationError{
			Reason: fmt.Sprintf("batch has %d items, limit is %d", len(items), maxBatchSize),
		}
	}
	for i := range items {
		if !items[i].Addressable() {
			return &ValidationError{
				Reason: fmt.Sprintf("item %d has neither an identifier nor prebuilt features", i),
			}
		}
	}
	return nil
}
