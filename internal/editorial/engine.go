// Package editorial implements the submission lifecycle and the per-stage
// assignment state machines. All writes for one submission are serialized
// through a per-submission lock so a transition commits all-or-nothing.
package editorial

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/quill/internal/blobstore"
	"github.com/pitabwire/quill/internal/observability"
	"github.com/pitabwire/quill/model"
)

// Engine coordinates submissions, assignments, artifacts, and schedules.
type Engine struct {
	store       Store
	blobs       blobstore.Store
	capResolver model.CapabilityResolver
	dispatcher  Dispatcher
	logger      *zap.Logger
	metrics     *observability.Metrics
	doiPrefix   string

	// now is replaceable in tests.
	now func() time.Time

	// Per-submission locks. Each submission is its own consistency
	// domain; cross-submission operations never share a lock.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Options configures engine construction.
type Options struct {
	Store       Store
	Blobs       blobstore.Store
	CapResolver model.CapabilityResolver
	Dispatcher  Dispatcher
	Logger      *zap.Logger

	// Metrics is optional; save instruments are skipped when nil.
	Metrics   *observability.Metrics
	DOIPrefix string
}

// NewEngine creates a new editorial engine.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = MultiDispatcher(nil)
	}
	return &Engine{
		store:       opts.Store,
		blobs:       opts.Blobs,
		capResolver: opts.CapResolver,
		dispatcher:  dispatcher,
		logger:      logger,
		metrics:     opts.Metrics,
		doiPrefix:   opts.DOIPrefix,
		now:         func() time.Time { return time.Now().UTC() },
		locks:       make(map[string]*sync.Mutex),
	}
}

// lockSubmission acquires the per-submission lock and returns its unlock
// function.
func (e *Engine) lockSubmission(submissionID string) func() {
	e.locksMu.Lock()
	mu, ok := e.locks[submissionID]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[submissionID] = mu
	}
	e.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// requireCapability resolves the actor's capabilities and checks one of the
// given capabilities is held.
func (e *Engine) requireCapability(rctx *model.RequestContext, caps ...string) error {
	resolved, err := e.capResolver.Resolve(rctx)
	if err != nil {
		return fmt.Errorf("resolve capabilities: %w", err)
	}
	if !resolved.HasAny(caps...) {
		return model.NewForbiddenError(
			fmt.Sprintf("missing capability %q", caps[0]),
		)
	}
	return nil
}

// hasCapability reports whether the actor holds the capability, swallowing
// resolver errors as "no".
func (e *Engine) hasCapability(rctx *model.RequestContext, cap string) bool {
	resolved, err := e.capResolver.Resolve(rctx)
	if err != nil {
		return false
	}
	return resolved.Has(cap)
}

// emit appends an event to the audit trail and dispatches it. Dispatch
// failures never fail the operation; append failures do.
func (e *Engine) emit(ctx context.Context, event model.Event) error {
	event.ID = uuid.New().String()
	event.Timestamp = e.now()

	if err := e.store.AppendEvent(ctx, event); err != nil {
		return fmt.Errorf("append event %s: %w", event.Type, err)
	}
	e.dispatcher.Dispatch(ctx, event)
	return nil
}

// advanceSubmission moves a submission to a new status and records the
// transition. The caller holds the submission lock.
func (e *Engine) advanceSubmission(ctx context.Context, rctx *model.RequestContext, sub model.Submission, to model.SubmissionStatus) error {
	from := sub.Status
	sub.Status = to
	if err := e.store.UpdateSubmission(ctx, sub); err != nil {
		return err
	}

	e.logger.Info("submission advanced",
		zap.String("submission_id", sub.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)

	return e.emit(ctx, model.Event{
		JournalID:    sub.JournalID,
		SubmissionID: sub.ID,
		Type:         model.EventSubmissionAdvanced,
		ActorID:      rctx.SubjectID,
		Data: map[string]any{
			"from": string(from),
			"to":   string(to),
		},
	})
}

// History returns the full audit trail for a submission, oldest first.
func (e *Engine) History(ctx context.Context, rctx *model.RequestContext, submissionID string) ([]model.Event, error) {
	return e.store.GetEvents(ctx, rctx.JournalID, submissionID)
}
