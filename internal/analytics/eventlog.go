package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"
)

// Event types emitted by the quiz core.
const (
	EventQuizStarted        = "quiz_started"
	EventAnswerSaved        = "answer_saved"
	EventQuizSettled        = "quiz_settled"
	EventReconcileTriggered = "reconcile_triggered"
)

type Event struct {
	Seq       int64
	Type      string
	Subject   string
	DataJSON  string
	CreatedAt int64
}

type EventRepo struct{ db *sql.DB }

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Append(ctx context.Context, typ, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO event_log (typ, subject, data, created_at)
		 VALUES ($1,$2,$3,$4)`,
		typ, subject, string(payload), time.Now().Unix())
	return err
}

// Emit is the fire-and-forget form: analytics must never fail a request.
func (r *EventRepo) Emit(ctx context.Context, typ, subject string, data interface{}) {
	if r == nil {
		return
	}
	if err := r.Append(ctx, typ, subject, data); err != nil {
		log.Printf("analytics: append %s/%s failed: %v", typ, subject, err)
	}
}
