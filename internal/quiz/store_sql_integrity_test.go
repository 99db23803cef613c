package quiz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nudgeprep/quizbot/internal/db"
)

func openIntegrityDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)",
		strings.ReplaceAll(t.Name(), "/", "_"))
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = dbh.Close() })
	return dbh
}

func seedIntegritySession(t *testing.T, store *SQLStore) Session {
	t.Helper()
	ctx := context.Background()
	if err := store.UpsertUser(ctx, User{ID: "u1", Phone: "+15550001", Name: "Asha"}); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	sess, err := store.CreateSession(ctx, "u1", "ext-u1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sess
}

func integrityQuestions(n int) []Question {
	qs := make([]Question, 0, n)
	for i := 1; i <= n; i++ {
		qs = append(qs, Question{Prompt: fmt.Sprintf("Q%d?", i), CorrectAnswer: "A", BankID: i})
	}
	return qs
}

func TestCreateQuestions_SessionDeletedMidInsert(t *testing.T) {
	dbh := openIntegrityDB(t)
	store := NewSQLStore(dbh)
	sess := seedIntegritySession(t, store)

	// The clock hook fires once per question insert, so the fifth tick
	// deletes the session after the up-front existence check passed. The
	// fifth insert then violates the session foreign key and the re-probe
	// must classify the failure as a vanished session.
	calls := 0
	store.now = func() time.Time {
		calls++
		if calls == 5 {
			if _, err := dbh.Exec(`DELETE FROM sessions WHERE id=$1`, sess.ID); err != nil {
				t.Fatalf("delete session: %v", err)
			}
		}
		return time.Now()
	}

	_, err := store.CreateQuestions(context.Background(), integrityQuestions(10), sess.ID, "u1")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("mid-insert session deletion must surface ErrSessionNotFound, got %v", err)
	}
}

func TestCreateQuestions_DuplicateOrdinalKeepsInsertError(t *testing.T) {
	dbh := openIntegrityDB(t)
	store := NewSQLStore(dbh)
	sess := seedIntegritySession(t, store)
	ctx := context.Background()

	if _, err := store.CreateQuestions(ctx, integrityQuestions(3), sess.ID, "u1"); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	// A second batch collides on (session_id, question_no) while the session
	// is alive: the re-probe must not misreport it as deleted.
	_, err := store.CreateQuestions(ctx, integrityQuestions(3), sess.ID, "u1")
	if err == nil {
		t.Fatalf("expected unique-constraint failure on duplicate ordinals")
	}
	if errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("live session misclassified as deleted: %v", err)
	}
	if !strings.Contains(err.Error(), "insert question 1") {
		t.Fatalf("error should name the failing ordinal, got %v", err)
	}
}
