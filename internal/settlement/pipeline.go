package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nudgeprep/quizbot/internal/assessment"
	"github.com/nudgeprep/quizbot/internal/quiz"
)

// Step names, in pipeline order.
const (
	StepTokenExchange = "token_exchange"
	StepTokenPersist  = "token_persist"
	StepAnswerSubmit  = "answer_submit"
	StepCertificate   = "certificate_claim"
	StepPaidTest      = "paid_test"
	StepAnalysis      = "analysis"
)

// StepResult is the typed outcome of one pipeline step. Fatal steps
// short-circuit the run; degraded steps only record their failure here.
type StepResult struct {
	Step    string `json:"step"`
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped,omitempty"`
	Message string `json:"message,omitempty"`
}

// Result aggregates every step so the caller can report partial success.
type Result struct {
	SessionID         string                  `json:"session_id"`
	Steps             []StepResult            `json:"steps"`
	Answers           []assessment.AnswerItem `json:"answers"`
	ScorePercent      float64                 `json:"score_percent"`
	OrderID           *string                 `json:"order_id,omitempty"`
	AnalysisGenerated bool                    `json:"analysis_generated"`
	Completed         bool                    `json:"completed"`
}

// SettlementError marks a fatal-step failure (credential exchange or its
// persistence). Everything downstream of those degrades instead.
type SettlementError struct {
	Step string
	Err  error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("settlement failed at %s: %v", e.Step, e.Err)
}

func (e *SettlementError) Unwrap() error { return e.Err }

// Store is the session/ledger surface the pipeline needs.
type Store interface {
	GetSession(ctx context.Context, id string) (quiz.Session, error)
	GetUser(ctx context.Context, id string) (quiz.User, error)
	SaveBearerToken(ctx context.Context, sessionID, token string, expiry *time.Time) error
	FinalizeSettlement(ctx context.Context, sessionID string, analysisGenerated bool, payload string, orderID *string) error
	QuestionsBySession(ctx context.Context, sessionID string) ([]quiz.Question, error)
}

// Backend is the external assessment system.
type Backend interface {
	ExchangeToken(ctx context.Context, id assessment.Identity) (assessment.TokenGrant, error)
	SubmitAnswers(ctx context.Context, token string, sub assessment.AnswerSubmission) error
	ClaimCertificate(ctx context.Context, token, userRef string) error
	CreatePaidTest(ctx context.Context, token, userRef string) (string, error)
	FetchAnalysis(ctx context.Context, token, userRef string) assessment.AnalysisResult
}

type Options struct {
	// SkipOrder leaves out the paid-test order step entirely.
	SkipOrder bool
}

// Pipeline settles a completed session against the assessment backend. There
// is no retry within a run and no compensation for best-effort calls already
// issued; re-invoking the whole pipeline is the caller's retry.
type Pipeline struct {
	Store   Store
	Backend Backend
	Now     func() time.Time
}

func New(store Store, backend Backend) *Pipeline {
	return &Pipeline{Store: store, Backend: backend, Now: time.Now}
}

// Run executes the full five-step settlement. Steps one and two are fatal;
// the rest record their failures and the run carries on to the single
// finalization write.
func (p *Pipeline) Run(ctx context.Context, sessionID string, opts Options) (Result, error) {
	sess, err := p.Store.GetSession(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	user, err := p.Store.GetUser(ctx, sess.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("settlement: %w", err)
	}

	res := Result{SessionID: sess.ID}

	// Step 1: credential exchange. Nothing works without a token.
	grant, err := p.Backend.ExchangeToken(ctx, assessment.Identity{
		UserRef: sess.ExternalUserRef,
		Name:    user.Name,
		Phone:   user.Phone,
	})
	if err != nil {
		return res, &SettlementError{Step: StepTokenExchange, Err: err}
	}
	res.Steps = append(res.Steps, StepResult{Step: StepTokenExchange, OK: true})

	// Step 2: persist the token so no further call runs under a credential
	// the session row does not reflect.
	if err := p.Store.SaveBearerToken(ctx, sess.ID, grant.Token, &grant.Expiry); err != nil {
		return res, &SettlementError{Step: StepTokenPersist, Err: err}
	}
	res.Steps = append(res.Steps, StepResult{Step: StepTokenPersist, OK: true})

	// Step 5 runs inside settle; order creation is only part of the full run.
	return p.settle(ctx, sess, grant.Token, opts, res)
}

// RunWithToken settles using a bearer token the caller already holds. Token
// exchange, persistence, and order creation are skipped; the finalization
// records a null order id.
func (p *Pipeline) RunWithToken(ctx context.Context, sessionID, token string) (Result, error) {
	sess, err := p.Store.GetSession(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	res := Result{SessionID: sess.ID}
	return p.settle(ctx, sess, token, Options{SkipOrder: true}, res)
}

func (p *Pipeline) settle(ctx context.Context, sess quiz.Session, token string, opts Options, res Result) (Result, error) {
	// Step 3: reconstruct and submit the scored answer bundle.
	questions, err := p.Store.QuestionsBySession(ctx, sess.ID)
	if err != nil {
		res.Steps = append(res.Steps, StepResult{Step: StepAnswerSubmit, Message: err.Error()})
	} else {
		answers, score := BuildScoredAnswers(questions)
		res.Answers, res.ScorePercent = answers, score
		sub := assessment.AnswerSubmission{
			Answers:           answers,
			ScorePercent:      score,
			CompletionTimeSec: int(p.Now().Sub(sess.CreatedAt) / time.Second),
		}
		if err := p.Backend.SubmitAnswers(ctx, token, sub); err != nil {
			log.Printf("settlement %s: answer submit failed: %v", sess.ID, err)
			res.Steps = append(res.Steps, StepResult{Step: StepAnswerSubmit, Message: err.Error()})
		} else {
			res.Steps = append(res.Steps, StepResult{Step: StepAnswerSubmit, OK: true})
		}
	}

	// Step 4: certificate claim, best-effort.
	if err := p.Backend.ClaimCertificate(ctx, token, sess.ExternalUserRef); err != nil {
		log.Printf("settlement %s: certificate claim failed: %v", sess.ID, err)
		res.Steps = append(res.Steps, StepResult{Step: StepCertificate, Message: err.Error()})
	} else {
		res.Steps = append(res.Steps, StepResult{Step: StepCertificate, OK: true})
	}

	// Step 5: paid-test order, optional and best-effort.
	if opts.SkipOrder {
		res.Steps = append(res.Steps, StepResult{Step: StepPaidTest, Skipped: true})
	} else if orderID, err := p.Backend.CreatePaidTest(ctx, token, sess.ExternalUserRef); err != nil {
		log.Printf("settlement %s: order creation failed: %v", sess.ID, err)
		res.Steps = append(res.Steps, StepResult{Step: StepPaidTest, Message: err.Error()})
	} else {
		res.OrderID = &orderID
		res.Steps = append(res.Steps, StepResult{Step: StepPaidTest, OK: true})
	}

	// Step 6: analysis fetch, informational only, never errors.
	analysis := p.Backend.FetchAnalysis(ctx, token, sess.ExternalUserRef)
	res.AnalysisGenerated = analysis.Success
	res.Steps = append(res.Steps, StepResult{Step: StepAnalysis, OK: analysis.Success, Message: analysis.Message})

	// Single finalization write: completion is recorded regardless of how the
	// best-effort steps fared.
	payload, _ := json.Marshal(res.Answers)
	if err := p.Store.FinalizeSettlement(ctx, sess.ID, res.AnalysisGenerated, string(payload), res.OrderID); err != nil {
		return res, fmt.Errorf("settlement finalize: %w", err)
	}
	res.Completed = true
	return res, nil
}
