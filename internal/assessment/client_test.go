package assessment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestClient(h http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(h)
	c := New(srv.URL, "shh")
	return c, srv
}

func TestDerivePassword_Deterministic(t *testing.T) {
	a := DerivePassword("ext-9", "shh")
	b := DerivePassword("ext-9", "shh")
	if a != b {
		t.Fatalf("derivation must be deterministic: %q vs %q", a, b)
	}
	if a == DerivePassword("ext-10", "shh") || a == DerivePassword("ext-9", "other") {
		t.Fatalf("derivation must depend on both user ref and secret")
	}
	if len(a) != 32 { // 16 bytes, hex encoded
		t.Fatalf("unexpected derived length %d", len(a))
	}
}

func TestExchangeToken_OpaqueTokenGetsDefaultTTL(t *testing.T) {
	var gotPassword string
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/token" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotPassword = body["password"]
		_ = json.NewEncoder(w).Encode(map[string]string{"result": "success", "token": "opaque-token"})
	})
	defer srv.Close()

	grant, err := c.ExchangeToken(context.Background(), Identity{UserRef: "ext-9", Name: "Asha", Phone: "+15550001"})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if grant.Token != "opaque-token" {
		t.Fatalf("unexpected token %q", grant.Token)
	}
	if gotPassword != DerivePassword("ext-9", "shh") {
		t.Fatalf("request must carry the derived password")
	}
	ttl := time.Until(grant.Expiry)
	if ttl < 23*time.Hour || ttl > 25*time.Hour {
		t.Fatalf("opaque token should get the default TTL, got %v", ttl)
	}
}

func TestExchangeToken_JWTExpiryHonored(t *testing.T) {
	exp := time.Now().Add(42 * time.Minute).Truncate(time.Second)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ext-9",
		"exp": exp.Unix(),
	}).SignedString([]byte("backend-key"))
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	c, srv := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"result": "success", "token": tok})
	})
	defer srv.Close()

	grant, err := c.ExchangeToken(context.Background(), Identity{UserRef: "ext-9"})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if !grant.Expiry.Equal(exp) {
		t.Fatalf("expected expiry from exp claim %v, got %v", exp, grant.Expiry)
	}
}

func TestExchangeToken_FailureEnvelope(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"result": "invalid_credentials", "message": "bad password"})
	})
	defer srv.Close()

	_, err := c.ExchangeToken(context.Background(), Identity{UserRef: "ext-9"})
	if err == nil || !strings.Contains(err.Error(), "bad password") {
		t.Fatalf("expected envelope failure to surface, got %v", err)
	}
}

func TestSubmitAnswers_SendsBearerAndPayload(t *testing.T) {
	var auth string
	var got AnswerSubmission
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tests/submit" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]string{"result": "success"})
	})
	defer srv.Close()

	sub := AnswerSubmission{
		Answers:           []AnswerItem{{QuestionNo: 1, Selected: "Paris", Correct: "Paris", IsCorrect: true}},
		ScorePercent:      100,
		CompletionTimeSec: 75,
	}
	if err := c.SubmitAnswers(context.Background(), "tok-1", sub); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if auth != "Bearer tok-1" {
		t.Fatalf("expected bearer header, got %q", auth)
	}
	if got.ScorePercent != 100 || got.CompletionTimeSec != 75 || len(got.Answers) != 1 {
		t.Fatalf("payload mangled: %+v", got)
	}
}

func TestSubmitAnswers_NonSuccessIsError(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"result": "error", "message": "test window closed"})
	})
	defer srv.Close()

	if err := c.SubmitAnswers(context.Background(), "tok", AnswerSubmission{}); err == nil {
		t.Fatalf("expected error on non-success envelope")
	}
}

func TestCreatePaidTest_ReturnsOrderID(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"result": "success", "order_id": "order-42"})
	})
	defer srv.Close()

	id, err := c.CreatePaidTest(context.Background(), "tok", "ext-9")
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	if id != "order-42" {
		t.Fatalf("unexpected order id %q", id)
	}
}

func TestCreatePaidTest_MissingOrderIDIsError(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"result": "success"})
	})
	defer srv.Close()

	if _, err := c.CreatePaidTest(context.Background(), "tok", "ext-9"); err == nil {
		t.Fatalf("a success envelope without an order id must error")
	}
}

func TestFetchAnalysis_Success(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analysis/ext-9" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": "success", "message": "ready", "status_code": 200,
			"data": map[string]string{"strength": "algorithms"},
		})
	})
	defer srv.Close()

	res := c.FetchAnalysis(context.Background(), "tok", "ext-9")
	if !res.Success || res.Message != "ready" {
		t.Fatalf("expected success, got %+v", res)
	}
	if !strings.Contains(res.Data, "algorithms") {
		t.Fatalf("expected data passthrough, got %q", res.Data)
	}
}

func TestFetchAnalysis_EmbeddedStatusCodeFails(t *testing.T) {
	// A 200 transport response can still carry a failing embedded status.
	c, srv := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": "success", "message": "analysis pending", "status_code": 202,
		})
	})
	defer srv.Close()

	res := c.FetchAnalysis(context.Background(), "tok", "ext-9")
	if res.Success {
		t.Fatalf("embedded non-200 status must count as failure: %+v", res)
	}
	if !strings.Contains(res.Error, "202") {
		t.Fatalf("embedded status missing from error: %+v", res)
	}
}

func TestFetchAnalysis_TransportFailuresNeverPanic(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	res := c.FetchAnalysis(context.Background(), "tok", "ext-9")
	if res.Success {
		t.Fatalf("HTTP 500 must normalize to failure: %+v", res)
	}
	srv.Close()

	// Server gone entirely: still a normalized failure, never an error value.
	res = c.FetchAnalysis(context.Background(), "tok", "ext-9")
	if res.Success || res.Error == "" {
		t.Fatalf("connection failure must normalize to failure: %+v", res)
	}
}
