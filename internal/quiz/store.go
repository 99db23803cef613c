package quiz

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrQuestionNotFound = errors.New("question not found")
)

// Ordinals reserved for scenario-bearing questions. The selector steers a
// scenario-bearing candidate onto these positions; the ledger attaches and
// surfaces scenario text at these fixed positions only.
const (
	ScenarioOrdinalMedium = 6
	ScenarioOrdinalHard   = 9
)

type Store interface {
	UpsertUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id string) (User, error)

	CreateSession(ctx context.Context, userID, externalUserRef string) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	SaveBearerToken(ctx context.Context, sessionID, token string, expiry *time.Time) error
	FinalizeSettlement(ctx context.Context, sessionID string, analysisGenerated bool, payload string, orderID *string) error
	StampReconciled(ctx context.Context, sessionID string, at time.Time) error

	CreateQuestions(ctx context.Context, qs []Question, sessionID, userID string) ([]Question, error)
	SaveAnswerAndNext(ctx context.Context, questionID, answer, sessionID string) (NextQuestion, error)
	QuestionsBySession(ctx context.Context, sessionID string) ([]Question, error)
	UpdateQuestionAnswer(ctx context.Context, questionID, answer string) error

	CountStalled(ctx context.Context, now time.Time) (int, error)
	ListStalled(ctx context.Context, now time.Time) ([]StalledSession, error)
}
