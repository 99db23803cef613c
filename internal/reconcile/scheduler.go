package reconcile

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/nudgeprep/quizbot/internal/analytics"
	"github.com/nudgeprep/quizbot/internal/quiz"
)

// Store is the reconciliation surface of the session store.
type Store interface {
	CountStalled(ctx context.Context, now time.Time) (int, error)
	ListStalled(ctx context.Context, now time.Time) ([]quiz.StalledSession, error)
	StampReconciled(ctx context.Context, sessionID string, at time.Time) error
}

// Engager triggers the external re-engagement call.
type Engager interface {
	Notify(ctx context.Context, phone, name string) error
}

// Recorder receives fire-and-forget analytics events; a nil Recorder
// disables recording.
type Recorder interface {
	Emit(ctx context.Context, typ, subject string, data interface{})
}

// Summary is one tick's aggregate outcome.
type Summary struct {
	Processed int `json:"processed"`
	Triggered int `json:"triggered"`
	Errors    int `json:"errors"`
}

// Scheduler re-engages sessions that stalled before answering question one.
// Each tick scans the [5,6)-minute age window; the reconciliation stamp is
// the only idempotency guard against re-triggering.
type Scheduler struct {
	Store    Store
	Engage   Engager
	Events   Recorder
	Interval time.Duration
	Now      func() time.Time
}

func New(store Store, engage Engager, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{Store: store, Engage: engage, Interval: interval, Now: time.Now}
}

// Run ticks until ctx is cancelled. The tick in flight when shutdown arrives
// runs to completion on its own deadline, detached from ctx.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tickCtx, cancel := context.WithTimeout(context.Background(), s.Interval)
			sum := s.Tick(tickCtx)
			cancel()
			if sum.Processed > 0 || sum.Errors > 0 {
				log.Printf("reconcile: processed=%d triggered=%d errors=%d", sum.Processed, sum.Triggered, sum.Errors)
			}
		}
	}
}

// Tick runs one reconciliation pass. Errors never escape: per-session
// failures are counted and the loop continues, and a failure before the loop
// degrades to a {0,0,1} summary so the scheduler itself survives a bad tick.
func (s *Scheduler) Tick(ctx context.Context) Summary {
	now := s.Now()

	// Cheap short-circuit: most ticks find nothing and skip the join.
	n, err := s.Store.CountStalled(ctx, now)
	if err != nil {
		log.Printf("reconcile: stalled count failed: %v", err)
		return Summary{Errors: 1}
	}
	if n == 0 {
		return Summary{}
	}

	stalled, err := s.Store.ListStalled(ctx, now)
	if err != nil {
		log.Printf("reconcile: stalled list failed: %v", err)
		return Summary{Errors: 1}
	}

	var sum Summary
	for _, st := range stalled {
		sum.Processed++
		if strings.TrimSpace(st.Phone) == "" || strings.TrimSpace(st.Name) == "" {
			log.Printf("reconcile: session %s skipped: missing contact details", st.SessionID)
			sum.Errors++
			continue
		}
		if err := s.Engage.Notify(ctx, st.Phone, st.Name); err != nil {
			log.Printf("reconcile: session %s re-engagement failed: %v", st.SessionID, err)
			sum.Errors++
			continue
		}
		// Stamp only after a successful call; the stamp keeps later ticks
		// from re-triggering this session.
		if err := s.Store.StampReconciled(ctx, st.SessionID, now); err != nil {
			log.Printf("reconcile: session %s stamp failed: %v", st.SessionID, err)
			sum.Errors++
			continue
		}
		if s.Events != nil {
			s.Events.Emit(ctx, analytics.EventReconcileTriggered, st.SessionID, map[string]interface{}{
				"user_id": st.UserID,
			})
		}
		sum.Triggered++
	}
	return sum
}
