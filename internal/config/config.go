package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr string

	DBDriver string
	DBDSN    string

	// External assessment backend.
	AssessmentBaseURL string
	AssessmentSecret  string // salt for the deterministic password derivation

	// Re-engagement endpoint for stalled sessions.
	EngageURL    string
	EngageAPIKey string

	QuestionBankPath string

	ReconcileInterval time.Duration
	SkipPaidTest      bool

	CORSOrigins []string
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:          addr,
		DBDriver:          envOr("DB_DRIVER", "sqlite"),
		DBDSN:             envOr("DB_DSN", ""),
		AssessmentBaseURL: envOr("ASSESSMENT_BASE_URL", "https://assess.example.com/api"),
		AssessmentSecret:  envOr("ASSESSMENT_SECRET", ""),
		EngageURL:         envOr("ENGAGE_URL", ""),
		EngageAPIKey:      envOr("ENGAGE_API_KEY", ""),
		QuestionBankPath:  envOr("QUESTION_BANK_PATH", "question_bank.json"),
		ReconcileInterval: envDur("RECONCILE_INTERVAL", time.Minute),
		SkipPaidTest:      envBool("SKIP_PAID_TEST", false),
		CORSOrigins:       csvOr("CORS_ORIGINS", "http://localhost:3000"),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func envDur(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
