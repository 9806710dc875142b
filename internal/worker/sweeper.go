package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magiciincaidev/callassist/common/logger"
	"github.com/magiciincaidev/callassist/internal/model"
	"github.com/magiciincaidev/callassist/internal/queue"
	"github.com/magiciincaidev/callassist/internal/store"
)

type SweeperConfig struct {
	Interval time.Duration
}

// Sweeper periodically walks the session namespace and enforces the timing
// constraints no foreground path enforces: sessions stuck in waiting past
// their max waiting time are expired, and sessions past their cleanup
// deadline have all their records deleted. The walk itself also self-heals
// corrupted records via the store's scan.
type Sweeper struct {
	store  store.SessionStore
	events queue.Publisher
	cfg    SweeperConfig

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewSweeper(sessionStore store.SessionStore, events queue.Publisher, cfg SweeperConfig) *Sweeper {
	return &Sweeper{
		store:     sessionStore,
		events:    events,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run starts the sweep loop. Blocks until Stop() is called or the context is
// cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "callassist.worker.sweeper",
	})

	defer close(s.stoppedCh)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "sweeper started", "interval", s.cfg.Interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			slog.InfoContext(ctx, "sweeper stopping")
			return
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "sweep cycle error", "error", err)
			}
		}
	}
}

// Stop signals the sweeper to stop gracefully.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.stoppedCh
}

// SweepOnce performs one pass over all sessions.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	sc := logger.StartSpan(ctx, "sweeper.sweep")
	defer sc.End()
	ctx = sc.Context()

	sessions, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	now := time.Now()
	for i := range sessions {
		session := sessions[i]

		if now.After(session.Constraints.CleanupAt) {
			if err := s.cleanup(ctx, &session); err != nil {
				slog.ErrorContext(ctx, "failed to clean up session",
					"error", err, "session_id", session.SessionID)
			}
			continue
		}

		if s.waitingExpired(&session, now) {
			if err := s.expire(ctx, &session, now); err != nil {
				slog.ErrorContext(ctx, "failed to expire session",
					"error", err, "session_id", session.SessionID)
			}
		}
	}

	return nil
}

func (s *Sweeper) waitingExpired(session *model.CallSession, now time.Time) bool {
	if session.DerivedStatus() != model.SessionStatusWaiting {
		return false
	}
	if session.Constraints.MaxWaitingTime <= 0 {
		return false
	}
	return now.Sub(session.Constraints.CreatedAt) > session.Constraints.MaxWaitingTime
}

// expire transitions a stale waiting session to ended so it stops counting
// against the concurrent-pair limit.
func (s *Sweeper) expire(ctx context.Context, session *model.CallSession, now time.Time) error {
	session.Status = model.SessionStatusEnded
	session.EndTime = &now

	if err := s.store.Update(ctx, session); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// A participant joined or left mid-sweep; their transition wins
			// and the next pass re-evaluates.
			slog.DebugContext(ctx, "expiry lost update race", "session_id", session.SessionID)
			return nil
		}
		return err
	}

	if err := s.events.Publish(ctx, queue.SessionEvent{
		Type:      queue.EventSessionExpired,
		SessionID: session.SessionID,
		Status:    session.Status,
		At:        now,
	}); err != nil {
		slog.WarnContext(ctx, "failed to publish expiry event",
			"error", err, "session_id", session.SessionID)
	}

	slog.InfoContext(ctx, "expired stale waiting session",
		"session_id", session.SessionID,
		"waited", now.Sub(session.Constraints.CreatedAt).Round(time.Second),
	)
	return nil
}

func (s *Sweeper) cleanup(ctx context.Context, session *model.CallSession) error {
	if err := s.store.Delete(ctx, session.SessionID); err != nil {
		return err
	}
	slog.InfoContext(ctx, "cleaned up session past cleanup deadline",
		"session_id", session.SessionID,
		"cleanup_at", session.Constraints.CleanupAt,
	)
	return nil
}
