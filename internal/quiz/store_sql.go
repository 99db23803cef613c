package quiz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SQLStore implements Store on top of database/sql. Queries are portable
// across the sqlite and postgres drivers wired in internal/db.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

func (s *SQLStore) UpsertUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id, phone, name, created_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET phone=EXCLUDED.phone, name=EXCLUDED.name`,
		u.ID, u.Phone, u.Name, s.now().Unix())
	return err
}

func (s *SQLStore) GetUser(ctx context.Context, id string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `SELECT id, phone, name FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Phone, &u.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %s: not found", id)
	}
	return u, err
}

func (s *SQLStore) CreateSession(ctx context.Context, userID, externalUserRef string) (Session, error) {
	sess := Session{
		ID:              uuid.NewString(),
		UserID:          userID,
		ExternalUserRef: externalUserRef,
		CreatedAt:       s.now(),
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions (id, user_id, external_user_ref, created_at)
		VALUES ($1,$2,$3,$4)`,
		sess.ID, sess.UserID, sess.ExternalUserRef, sess.CreatedAt.Unix())
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

func (s *SQLStore) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, user_id, external_user_ref, bearer_token, token_expiry,
		created_at, quiz_completed, quiz_analysis_generated, reconciliation_fired_at, settlement_payload, order_id
		FROM sessions WHERE id=$1`, id)

	var sess Session
	var expiry, createdAt, firedAt sql.NullInt64
	var payload, orderID sql.NullString
	err := row.Scan(&sess.ID, &sess.UserID, &sess.ExternalUserRef, &sess.BearerToken, &expiry,
		&createdAt, &sess.QuizCompleted, &sess.QuizAnalysisGenerated, &firedAt, &payload, &orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, err
	}
	sess.CreatedAt = time.Unix(createdAt.Int64, 0)
	if expiry.Valid {
		t := time.Unix(expiry.Int64, 0)
		sess.TokenExpiry = &t
	}
	if firedAt.Valid {
		t := time.Unix(firedAt.Int64, 0)
		sess.ReconciliationFiredAt = &t
	}
	sess.SettlementPayload = payload.String
	if orderID.Valid && orderID.String != "" {
		v := orderID.String
		sess.OrderID = &v
	}
	return sess, nil
}

func (s *SQLStore) SaveBearerToken(ctx context.Context, sessionID, token string, expiry *time.Time) error {
	var exp interface{}
	if expiry != nil {
		exp = expiry.Unix()
	}
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET bearer_token=$1, token_expiry=$2 WHERE id=$3`,
		token, exp, sessionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// FinalizeSettlement is the pipeline's single finalization write: completion
// is always recorded, the analysis flag only when analysis retrieval
// succeeded, and the order id stays null when step five was skipped or failed.
func (s *SQLStore) FinalizeSettlement(ctx context.Context, sessionID string, analysisGenerated bool, payload string, orderID *string) error {
	var oid interface{}
	if orderID != nil {
		oid = *orderID
	}
	res, err := s.db.ExecContext(ctx, `UPDATE sessions
		SET quiz_completed=$1, quiz_analysis_generated=$2, settlement_payload=$3, order_id=$4
		WHERE id=$5`,
		true, analysisGenerated, payload, oid, sessionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *SQLStore) StampReconciled(ctx context.Context, sessionID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET reconciliation_fired_at=$1 WHERE id=$2`,
		at.Unix(), sessionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *SQLStore) sessionExists(ctx context.Context, sessionID, userID string) (bool, error) {
	var one int
	q := `SELECT 1 FROM sessions WHERE id=$1`
	args := []interface{}{sessionID}
	if userID != "" {
		q += ` AND user_id=$2`
		args = append(args, userID)
	}
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateQuestions inserts the selected questions for a session, assigning the
// 1-based ordinal as question_no. Scenario text is attached only at the
// ordinals reserved for the first medium and first hard question. If an insert
// fails mid-loop the session is re-probed to tell "session deleted
// concurrently" apart from other integrity errors; both abort the loop.
func (s *SQLStore) CreateQuestions(ctx context.Context, qs []Question, sessionID, userID string) ([]Question, error) {
	ok, err := s.sessionExists(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionNotFound
	}

	created := make([]Question, 0, len(qs))
	for i, q := range qs {
		q.SessionID = sessionID
		q.UserID = userID
		q.QuestionNo = i + 1
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if q.QuestionNo != ScenarioOrdinalMedium && q.QuestionNo != ScenarioOrdinalHard {
			q.Scenario = ""
		}
		now := s.now()
		q.CreatedAt, q.UpdatedAt = now, now

		_, err := s.db.ExecContext(ctx, `INSERT INTO questions
			(id, session_id, user_id, question_no, prompt, answer, correct_answer, answered, bank_id, scenario, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			q.ID, q.SessionID, q.UserID, q.QuestionNo, q.Prompt, q.Answer, q.CorrectAnswer,
			false, q.BankID, q.Scenario, now.Unix(), now.Unix())
		if err != nil {
			// A failed insert may mean the session vanished under us.
			still, probeErr := s.sessionExists(ctx, sessionID, "")
			if probeErr == nil && !still {
				return nil, fmt.Errorf("session deleted during question insert: %w", ErrSessionNotFound)
			}
			return nil, fmt.Errorf("insert question %d: %w", q.QuestionNo, err)
		}
		created = append(created, q)
	}
	return created, nil
}

// SaveAnswerAndNext marks a question answered and returns the question at the
// following ordinal, all inside one transaction so the follow-up read never
// observes a stale unanswered state. The update is scoped by both question id
// and session id to keep answers from leaking across sessions.
func (s *SQLStore) SaveAnswerAndNext(ctx context.Context, questionID, answer, sessionID string) (NextQuestion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return NextQuestion{}, err
	}
	defer tx.Rollback()

	var ordinal int
	err = tx.QueryRowContext(ctx, `SELECT question_no FROM questions WHERE id=$1 AND session_id=$2`,
		questionID, sessionID).Scan(&ordinal)
	if errors.Is(err, sql.ErrNoRows) {
		return NextQuestion{}, ErrQuestionNotFound
	}
	if err != nil {
		return NextQuestion{}, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE questions SET answer=$1, answered=$2, updated_at=$3
		WHERE id=$4 AND session_id=$5`,
		answer, true, s.now().Unix(), questionID, sessionID); err != nil {
		return NextQuestion{}, err
	}

	next, err := scanQuestion(tx.QueryRowContext(ctx, `SELECT `+questionColumns+`
		FROM questions WHERE session_id=$1 AND question_no=$2`,
		sessionID, ordinal+1))
	if errors.Is(err, sql.ErrNoRows) {
		if err := tx.Commit(); err != nil {
			return NextQuestion{}, err
		}
		return NextQuestion{Complete: true}, nil
	}
	if err != nil {
		return NextQuestion{}, err
	}
	if err := tx.Commit(); err != nil {
		return NextQuestion{}, err
	}

	out := NextQuestion{Question: &next}
	if next.QuestionNo == ScenarioOrdinalMedium || next.QuestionNo == ScenarioOrdinalHard {
		if sc := strings.TrimSpace(next.Scenario); sc != "" {
			out.Scenario = sc
		}
	}
	return out, nil
}

func (s *SQLStore) QuestionsBySession(ctx context.Context, sessionID string) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+questionColumns+`
		FROM questions WHERE session_id=$1 ORDER BY question_no`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateQuestionAnswer(ctx context.Context, questionID, answer string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE questions SET answer=$1, answered=$2, updated_at=$3 WHERE id=$4`,
		answer, true, s.now().Unix(), questionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrQuestionNotFound
	}
	return nil
}

// Reconciliation window: sessions whose age is in [5,6) minutes. The job
// polls every minute, so a one-minute-wide window visits each qualifying
// session in at least one tick; the reconciliation stamp excludes it from
// later ticks immediately.
const (
	stalledAgeMin = 5 * time.Minute
	stalledAgeMax = 6 * time.Minute
)

func stalledBounds(now time.Time) (lo, hi int64) {
	return now.Add(-stalledAgeMax).Unix(), now.Add(-stalledAgeMin).Unix()
}

func (s *SQLStore) CountStalled(ctx context.Context, now time.Time) (int, error) {
	lo, hi := stalledBounds(now)
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions
		WHERE created_at > $1 AND created_at <= $2 AND reconciliation_fired_at IS NULL`,
		lo, hi).Scan(&n)
	return n, err
}

func (s *SQLStore) ListStalled(ctx context.Context, now time.Time) ([]StalledSession, error) {
	lo, hi := stalledBounds(now)
	rows, err := s.db.QueryContext(ctx, `SELECT s.id, s.user_id, u.phone, u.name
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		LEFT JOIN questions q ON q.session_id = s.id AND q.question_no = 1
		WHERE s.created_at > $1 AND s.created_at <= $2
		  AND s.reconciliation_fired_at IS NULL
		  AND (q.id IS NULL OR NOT q.answered)
		ORDER BY s.created_at`,
		lo, hi)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StalledSession
	for rows.Next() {
		var st StalledSession
		if err := rows.Scan(&st.SessionID, &st.UserID, &st.Phone, &st.Name); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

const questionColumns = `id, session_id, user_id, question_no, prompt, answer, correct_answer, answered, bank_id, scenario, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQuestion(row rowScanner) (Question, error) {
	var q Question
	var createdAt, updatedAt int64
	err := row.Scan(&q.ID, &q.SessionID, &q.UserID, &q.QuestionNo, &q.Prompt, &q.Answer,
		&q.CorrectAnswer, &q.Answered, &q.BankID, &q.Scenario, &createdAt, &updatedAt)
	if err != nil {
		return Question{}, err
	}
	q.CreatedAt = time.Unix(createdAt, 0)
	q.UpdatedAt = time.Unix(updatedAt, 0)
	return q, nil
}
