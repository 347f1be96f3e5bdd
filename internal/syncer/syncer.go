// Package syncer reconciles pending submissions with the remote incident
// service: periodic and event-triggered passes, bounded retries, terminal
// failure marking.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/galamseywatch/fieldkit/internal/media"
	"github.com/galamseywatch/fieldkit/internal/model"
	"github.com/galamseywatch/fieldkit/internal/store"
)

// ErrAlreadySyncing is returned to a caller invoking sync while a pass is
// active. The second invocation performs zero store mutations.
var ErrAlreadySyncing = errors.New("sync already in progress")

type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusOffline Status = "offline"
)

type Result struct {
	Success bool     `json:"success"`
	Synced  int      `json:"synced"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`
}

// Event is one line of the sync status stream consumed by the UI.
type Event struct {
	Type     string  `json:"type"` // start|progress|complete|error
	Status   Status  `json:"status"`
	Progress int     `json:"progress,omitempty"`
	Total    int     `json:"total,omitempty"`
	Result   *Result `json:"result,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// Deliverer sends one submission to the remote service. Satisfied by
// *remote.Client; tests substitute doubles.
type Deliverer interface {
	SubmitIncident(ctx context.Context, payload model.IncidentPayload, evidence []media.Raw, offlineID string, createdAt time.Time) error
}

type Synchronizer struct {
	store       *store.Store
	codec       *media.Codec
	deliver     Deliverer
	online      func() bool
	maxAttempts int
	pacing      time.Duration
	interval    time.Duration
	log         *logrus.Logger

	syncing atomic.Bool
	trigger chan struct{}

	mu   sync.Mutex
	subs map[string]chan Event
}

func New(st *store.Store, codec *media.Codec, deliver Deliverer, online func() bool, maxAttempts int, pacing, interval time.Duration, log *logrus.Logger) *Synchronizer {
	if online == nil {
		online = func() bool { return true }
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Synchronizer{
		store:       st,
		codec:       codec,
		deliver:     deliver,
		online:      online,
		maxAttempts: maxAttempts,
		pacing:      pacing,
		interval:    interval,
		log:         log,
		trigger:     make(chan struct{}, 1),
		subs:        map[string]chan Event{},
	}
}

// Subscribe attaches an event listener. Attaching or detaching never affects
// whether a pass runs; slow subscribers drop events rather than block a pass.
func (s *Synchronizer) Subscribe() (string, <-chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, 16)
	s.mu.Lock()
	s.subs[id] = ch
	s.mu.Unlock()
	return id, ch
}

func (s *Synchronizer) Unsubscribe(id string) {
	s.mu.Lock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()
}

func (s *Synchronizer) emit(ev Event) {
	s.mu.Lock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

// InProgress reports whether a pass is currently running.
func (s *Synchronizer) InProgress() bool {
	return s.syncing.Load()
}

// Trigger requests a pass from the run loop without blocking. Coalesces with
// an already-requested trigger.
func (s *Synchronizer) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Sync runs one pass. At most one pass runs at a time; concurrent callers get
// ErrAlreadySyncing. When connectivity is known to be down the pass aborts
// before touching the store.
func (s *Synchronizer) Sync(ctx context.Context) (Result, error) {
	if !s.online() {
		s.emit(Event{Type: "error", Status: StatusOffline, Error: "cannot sync while offline"})
		return Result{Success: false, Errors: []string{"cannot sync while offline"}}, nil
	}
	if !s.syncing.CompareAndSwap(false, true) {
		return Result{Success: false, Errors: []string{"sync already in progress"}}, ErrAlreadySyncing
	}
	defer s.syncing.Store(false)

	result := Result{Success: true, Errors: []string{}}

	snapshot, err := s.store.SnapshotSyncable(ctx, s.maxAttempts)
	if err != nil {
		s.emit(Event{Type: "error", Status: StatusError, Error: err.Error()})
		return Result{}, fmt.Errorf("snapshot syncable submissions: %w", err)
	}
	if len(snapshot) == 0 {
		s.emit(Event{Type: "complete", Status: StatusSuccess, Result: &result})
		return result, nil
	}

	s.emit(Event{Type: "start", Status: StatusSyncing, Total: len(snapshot)})
	if s.log != nil {
		s.log.WithField("total", len(snapshot)).Info("sync pass started")
	}

	for i, sub := range snapshot {
		s.emit(Event{Type: "progress", Status: StatusSyncing, Progress: i + 1, Total: len(snapshot)})

		if err := s.deliverOne(ctx, sub); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", sub.Payload.Title, err.Error()))
		} else {
			result.Synced++
		}

		// Cooperative pacing between deliveries; not applied after the last.
		if i < len(snapshot)-1 && s.pacing > 0 {
			select {
			case <-time.After(s.pacing):
			case <-ctx.Done():
				result.Success = false
				result.Errors = append(result.Errors, ctx.Err().Error())
				s.emit(Event{Type: "complete", Status: StatusError, Result: &result})
				return result, ctx.Err()
			}
		}
	}

	result.Success = result.Failed == 0
	status := StatusSuccess
	if !result.Success {
		status = StatusError
	}
	s.emit(Event{Type: "complete", Status: status, Result: &result})
	if s.log != nil {
		s.log.WithFields(logrus.Fields{"synced": result.Synced, "failed": result.Failed}).Info("sync pass complete")
	}
	return result, nil
}

// deliverOne commits the submission's terminal state before returning, so the
// next item's attempt never begins with this one still in flight.
func (s *Synchronizer) deliverOne(ctx context.Context, sub model.PendingSubmission) error {
	now := time.Now().UTC()
	if err := s.store.MarkSubmissionSyncing(ctx, sub.ID, now); err != nil {
		// Claimed or removed since the snapshot was taken; leave it alone.
		return fmt.Errorf("claim submission: %w", err)
	}
	attempts := sub.Attempts + 1

	evidence := make([]media.Raw, 0, len(sub.Evidence))
	for _, item := range sub.Evidence {
		evidence = append(evidence, s.codec.Decode(item))
	}

	err := s.deliver.SubmitIncident(ctx, sub.Payload, evidence, sub.ID, sub.CreatedAt)
	if err == nil {
		if err := s.store.DeletePendingSubmission(ctx, sub.ID); err != nil {
			return fmt.Errorf("delete synced submission: %w", err)
		}
		return nil
	}

	if attempts >= s.maxAttempts {
		if markErr := s.store.MarkSubmissionFailed(ctx, sub.ID, err.Error()); markErr != nil {
			return fmt.Errorf("mark submission failed: %w", markErr)
		}
	} else {
		if revertErr := s.store.RevertSubmissionPending(ctx, sub.ID, err.Error()); revertErr != nil {
			return fmt.Errorf("revert submission: %w", revertErr)
		}
	}
	return err
}

// RunLoop drives automatic passes: the fixed interval, an offline-to-online
// transition, and explicit triggers. All of them funnel through the Sync
// guard, so passes never overlap.
func (s *Synchronizer) RunLoop(ctx context.Context) {
	interval := s.interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	wasOnline := s.online()
	if wasOnline {
		s.runOnce(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			nowOnline := s.online()
			if nowOnline && !wasOnline {
				if s.log != nil {
					s.log.Info("connectivity restored, syncing")
				}
			}
			if nowOnline {
				s.runOnce(ctx)
			}
			wasOnline = nowOnline
		case <-s.trigger:
			s.runOnce(ctx)
			wasOnline = s.online()
		}
	}
}

func (s *Synchronizer) runOnce(ctx context.Context) {
	if _, err := s.Sync(ctx); err != nil && !errors.Is(err, ErrAlreadySyncing) && !errors.Is(err, context.Canceled) {
		if s.log != nil {
			s.log.WithError(err).Warn("sync pass failed")
		}
	}
}
