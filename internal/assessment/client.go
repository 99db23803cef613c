package assessment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Envelope is the JSON shape every assessment endpoint answers with.
type Envelope struct {
	Result  string `json:"result"` // "success" or a failure code
	Message string `json:"message"`
}

func (e Envelope) ok() bool { return e.Result == "success" }

// Identity carries the fields the credential exchange authenticates on.
type Identity struct {
	UserRef string `json:"user_ref"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
}

type TokenGrant struct {
	Token  string
	Expiry time.Time
}

// AnswerItem is one scored answer on the wire.
type AnswerItem struct {
	QuestionNo int    `json:"question_no"`
	Question   string `json:"question"`
	Selected   string `json:"selected"`
	Correct    string `json:"correct"`
	IsCorrect  bool   `json:"is_correct"`
}

// AnswerSubmission is the bulk scoring bundle.
type AnswerSubmission struct {
	Answers           []AnswerItem `json:"answers"`
	ScorePercent      float64      `json:"score_percent"`
	CompletionTimeSec int          `json:"completion_time_sec"`
}

// AnalysisResult is the normalized outcome of the analysis fetch. It never
// surfaces as an error: the step is informational only, so every failure path
// folds into Success=false.
type AnalysisResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Data    string `json:"data,omitempty"`
}

// defaultTokenTTL applies when the exchanged token carries no readable expiry.
const defaultTokenTTL = 24 * time.Hour

// Client talks to the external assessment backend. Every call is bounded by
// the underlying client timeout plus whatever deadline the caller's context
// carries.
type Client struct {
	BaseURL string
	Secret  string
	HTTP    *http.Client
}

func New(baseURL, secret string) *Client {
	return &Client{
		BaseURL: baseURL,
		Secret:  secret,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// ExchangeToken trades user identity plus the derived password for a bearer
// token scoped to this assessment attempt.
func (c *Client) ExchangeToken(ctx context.Context, id Identity) (TokenGrant, error) {
	body := struct {
		Identity
		Password string `json:"password"`
	}{Identity: id, Password: DerivePassword(id.UserRef, c.Secret)}

	var out struct {
		Envelope
		Token string `json:"token"`
	}
	if err := c.post(ctx, "/auth/token", "", body, &out); err != nil {
		return TokenGrant{}, err
	}
	if !out.ok() || out.Token == "" {
		return TokenGrant{}, fmt.Errorf("token exchange: %s", out.Message)
	}
	return TokenGrant{Token: out.Token, Expiry: tokenExpiry(out.Token)}, nil
}

// tokenExpiry reads the exp claim when the token is a JWT; opaque tokens get
// the default TTL. The claim is not verified here, only read.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return time.Now().Add(defaultTokenTTL)
}

func (c *Client) SubmitAnswers(ctx context.Context, token string, sub AnswerSubmission) error {
	var out Envelope
	if err := c.post(ctx, "/tests/submit", token, sub, &out); err != nil {
		return err
	}
	if !out.ok() {
		return fmt.Errorf("answer submission: %s", out.Message)
	}
	return nil
}

func (c *Client) ClaimCertificate(ctx context.Context, token, userRef string) error {
	var out Envelope
	if err := c.post(ctx, "/certificates/claim", token, map[string]string{"user_ref": userRef}, &out); err != nil {
		return err
	}
	if !out.ok() {
		return fmt.Errorf("certificate claim: %s", out.Message)
	}
	return nil
}

// CreatePaidTest places the paid-test order and returns the order identifier.
func (c *Client) CreatePaidTest(ctx context.Context, token, userRef string) (string, error) {
	var out struct {
		Envelope
		OrderID string `json:"order_id"`
	}
	if err := c.post(ctx, "/orders", token, map[string]string{"user_ref": userRef, "product": "paid_test"}, &out); err != nil {
		return "", err
	}
	if !out.ok() || out.OrderID == "" {
		return "", fmt.Errorf("order creation: %s", out.Message)
	}
	return out.OrderID, nil
}

// FetchAnalysis retrieves the generated analysis. A 200 response can still
// carry an embedded error via a non-200 status_code field; that counts as
// failure like any transport error would.
func (c *Client) FetchAnalysis(ctx context.Context, token, userRef string) AnalysisResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/analysis/"+userRef, nil)
	if err != nil {
		return AnalysisResult{Success: false, Message: "analysis request build failed", Error: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return AnalysisResult{Success: false, Message: "analysis request failed", Error: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return AnalysisResult{Success: false, Message: "analysis read failed", Error: err.Error()}
	}
	if resp.StatusCode/100 != 2 {
		return AnalysisResult{Success: false, Message: "analysis fetch failed", Error: fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(raw))}
	}

	var body struct {
		Envelope
		StatusCode int             `json:"status_code"`
		Data       json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return AnalysisResult{Success: false, Message: "analysis parse failed", Error: err.Error()}
	}
	if body.StatusCode != 0 && body.StatusCode != http.StatusOK {
		return AnalysisResult{Success: false, Message: body.Message, Error: fmt.Sprintf("embedded status %d", body.StatusCode)}
	}
	if !body.ok() {
		return AnalysisResult{Success: false, Message: body.Message, Error: body.Result}
	}
	return AnalysisResult{Success: true, Message: body.Message, Data: string(body.Data)}
}

func (c *Client) post(ctx context.Context, path, token string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, truncate(raw))
	}
	return json.Unmarshal(raw, out)
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}
