package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nudgeprep/quizbot/internal/analytics"
	api "github.com/nudgeprep/quizbot/internal/api/http"
	"github.com/nudgeprep/quizbot/internal/assessment"
	"github.com/nudgeprep/quizbot/internal/config"
	"github.com/nudgeprep/quizbot/internal/db"
	"github.com/nudgeprep/quizbot/internal/engage"
	"github.com/nudgeprep/quizbot/internal/quiz"
	"github.com/nudgeprep/quizbot/internal/reconcile"
	"github.com/nudgeprep/quizbot/internal/settlement"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	store := quiz.NewSQLStore(dbh)
	events := analytics.NewEventRepo(dbh)

	// --- External collaborators ---
	backend := assessment.New(cfg.AssessmentBaseURL, cfg.AssessmentSecret)
	engager := engage.New(cfg.EngageURL, cfg.EngageAPIKey)
	pipe := settlement.New(store, backend)

	// --- Reconciliation scheduler ---
	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	sched := reconcile.New(store, engager, cfg.ReconcileInterval)
	sched.Events = events
	go sched.Run(runCtx)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	pool := quiz.FilePool{Path: cfg.QuestionBankPath}
	selector := quiz.NewSelector()

	r.Post("/quiz/start", api.StartQuizHandler(store, pool, selector, events))
	r.Post("/quiz/{sessionID}/answer", api.SaveAnswerHandler(store, events))
	r.Post("/quiz/{sessionID}/submit", api.SubmitQuizHandler(pipe, events, cfg.SkipPaidTest))
	r.Get("/quiz/{sessionID}/questions", api.GetQuestionsHandler(store))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	log.Printf("listening on %s (db=%s)", cfg.HTTPAddr, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
