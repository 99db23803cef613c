package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nudgeprep/quizbot/internal/analytics"
	"github.com/nudgeprep/quizbot/internal/quiz"
	"github.com/nudgeprep/quizbot/internal/settlement"

	"github.com/go-chi/chi/v5"
)

// StartQuizHandler creates a session and its ten-question ledger from the
// bank pool.
func StartQuizHandler(store quiz.Store, pool quiz.PoolProvider, sel *quiz.Selector, events *analytics.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID      string `json:"user_id"`
			Phone       string `json:"phone"`
			Name        string `json:"name"`
			ExternalRef string `json:"external_ref"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		if req.UserID == "" {
			http.Error(w, "user_id required", 400)
			return
		}

		ctx := r.Context()
		if err := store.UpsertUser(ctx, quiz.User{ID: req.UserID, Phone: req.Phone, Name: req.Name}); err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		sess, err := store.CreateSession(ctx, req.UserID, req.ExternalRef)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}

		tiers, err := pool.LoadPool(ctx)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		selected := sel.Build(tiers)
		qs := make([]quiz.Question, 0, len(selected))
		for _, sq := range selected {
			qs = append(qs, quiz.Question{
				QuestionNo:    sq.Position,
				Prompt:        sq.Prompt,
				CorrectAnswer: sq.CorrectAnswer,
				BankID:        sq.BankID,
				Scenario:      sq.ScenarioText(),
			})
		}
		created, err := store.CreateQuestions(ctx, qs, sess.ID, req.UserID)
		if err != nil {
			http.Error(w, err.Error(), errStatus(err))
			return
		}

		events.Emit(ctx, analytics.EventQuizStarted, sess.ID, map[string]interface{}{
			"user_id": req.UserID, "questions": len(created),
		})

		var first *quiz.Question
		if len(created) > 0 {
			first = &created[0]
		}
		writeJSON(w, map[string]interface{}{
			"session":  sess,
			"total":    len(created),
			"question": first,
		})
	}
}

// SaveAnswerHandler records an answer and returns the next question, or the
// completion signal after the last ordinal.
func SaveAnswerHandler(store quiz.Store, events *analytics.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		var req struct {
			QuestionID string `json:"question_id"`
			Answer     string `json:"answer"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		if req.QuestionID == "" || req.Answer == "" {
			http.Error(w, "question_id and answer required", 400)
			return
		}

		next, err := store.SaveAnswerAndNext(r.Context(), req.QuestionID, req.Answer, sessionID)
		if err != nil {
			http.Error(w, err.Error(), errStatus(err))
			return
		}
		events.Emit(r.Context(), analytics.EventAnswerSaved, sessionID, map[string]interface{}{
			"question_id": req.QuestionID,
		})

		if next.Complete {
			writeJSON(w, map[string]interface{}{"status": "complete"})
			return
		}
		resp := map[string]interface{}{"status": "ok", "question": next.Question}
		if next.Scenario != "" {
			resp["scenario"] = next.Scenario
		}
		writeJSON(w, resp)
	}
}

// SubmitQuizHandler runs the settlement pipeline. Degraded-step failures do
// not fail the request; the aggregate result reports them. skipOrderDefault
// applies when the request does not ask for the order step explicitly.
func SubmitQuizHandler(pipe *settlement.Pipeline, events *analytics.EventRepo, skipOrderDefault bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		var req struct {
			SkipOrder bool   `json:"skip_order"`
			Token     string `json:"token"`
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		var (
			res settlement.Result
			err error
		)
		if req.Token != "" {
			res, err = pipe.RunWithToken(r.Context(), sessionID, req.Token)
		} else {
			res, err = pipe.Run(r.Context(), sessionID, settlement.Options{SkipOrder: req.SkipOrder || skipOrderDefault})
		}
		if err != nil {
			var se *settlement.SettlementError
			if errors.As(err, &se) {
				http.Error(w, se.Error(), http.StatusBadGateway)
				return
			}
			http.Error(w, err.Error(), errStatus(err))
			return
		}

		events.Emit(r.Context(), analytics.EventQuizSettled, sessionID, map[string]interface{}{
			"score_percent": res.ScorePercent, "analysis": res.AnalysisGenerated,
		})
		writeJSON(w, res)
	}
}

func GetQuestionsHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qs, err := store.QuestionsBySession(r.Context(), chi.URLParam(r, "sessionID"))
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		writeJSON(w, qs)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, quiz.ErrSessionNotFound), errors.Is(err, quiz.ErrQuestionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
