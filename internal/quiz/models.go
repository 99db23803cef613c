package quiz

import "time"

type User struct {
	ID    string `json:"id"`
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

// Session is one user's single attempt at a ten-question quiz.
type Session struct {
	ID                    string     `json:"id"`
	UserID                string     `json:"user_id"`
	ExternalUserRef       string     `json:"external_user_ref"`
	BearerToken           string     `json:"-"`
	TokenExpiry           *time.Time `json:"-"`
	CreatedAt             time.Time  `json:"created_at"`
	QuizCompleted         bool       `json:"quiz_completed"`
	QuizAnalysisGenerated bool       `json:"quiz_analysis_generated"`
	ReconciliationFiredAt *time.Time `json:"reconciliation_fired_at,omitempty"`
	SettlementPayload     string     `json:"settlement_payload,omitempty"`
	OrderID               *string    `json:"order_id,omitempty"`
}

type Question struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	UserID        string    `json:"user_id"`
	QuestionNo    int       `json:"question_no"` // 1-based ordinal within the session
	Prompt        string    `json:"prompt"`
	Answer        string    `json:"answer"` // single letter, empty until answered
	CorrectAnswer string    `json:"correct_answer"`
	Answered      bool      `json:"answered"`
	BankID        int       `json:"bank_id"`
	Scenario      string    `json:"scenario,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NextQuestion is the outcome of an answer save: either the question at the
// following ordinal, or the terminal completion signal.
type NextQuestion struct {
	Complete bool      `json:"complete"`
	Question *Question `json:"question,omitempty"`
	// Scenario is surfaced only at the designated medium/hard ordinals and
	// only when the stored text is non-blank.
	Scenario string `json:"scenario,omitempty"`
}

// StalledSession is a reconciliation candidate joined to its owner's contact
// details.
type StalledSession struct {
	SessionID string
	UserID    string
	Phone     string
	Name      string
}
