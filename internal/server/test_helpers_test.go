package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/actions"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/database"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/humanity"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/ledger"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/signals"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/users"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testSigningSecret = "test-signing-secret"
	testIssuer        = "humanqa-auth"
	testCookieName    = "app_session"
	ownerWallet       = "0x1111111111111111111111111111111111111111"
	helperWallet      = "0x2222222222222222222222222222222222222222"
)

var testClockNow = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time {
	return testClockNow
}

type stubProof struct {
	Nullifier   string `json:"nullifier"`
	Failure     string `json:"failure"`
	Unavailable bool   `json:"unavailable"`
}

// stubVerifier reads its verdict from the proof payload.
type stubVerifier struct{}

func (stubVerifier) Verify(_ context.Context, request humanity.Request) (humanity.Result, error) {
	var proof stubProof
	if err := json.Unmarshal(request.Proof, &proof); err != nil {
		return humanity.Result{FailureCode: humanity.FailureInvalidProof}, nil
	}
	if proof.Unavailable {
		return humanity.Result{}, humanity.ErrOracleUnavailable
	}
	if proof.Failure != "" {
		return humanity.Result{FailureCode: humanity.FailureCode(proof.Failure)}, nil
	}
	return humanity.Result{Accepted: true, Nullifier: proof.Nullifier}, nil
}

type testServer struct {
	handler  http.Handler
	db       *gorm.DB
	issuer   *auth.TokenIssuer
	realtime *RealtimeDispatcher
}

func newTestServer(t *testing.T, options ...func(*Dependencies)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db, zap.NewNop()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	idProvider := notes.NewUUIDProvider()
	guard, err := ledger.NewGuard(ledger.GuardConfig{IDProvider: idProvider, Clock: fixedClock})
	if err != nil {
		t.Fatalf("failed to construct guard: %v", err)
	}
	realtime := NewRealtimeDispatcher()
	service, err := actions.NewService(actions.ServiceConfig{
		Database:   db,
		Verifier:   stubVerifier{},
		Guard:      guard,
		Signals:    signals.NewPolicy(signals.Config{Clock: fixedClock}),
		IDProvider: idProvider,
		Notifier:   realtime,
		Clock:      fixedClock,
	})
	if err != nil {
		t.Fatalf("failed to construct actions service: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		CookieName:    testCookieName,
		Clock:         fixedClock,
	})
	if err != nil {
		t.Fatalf("failed to construct session validator: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		TokenTTL:      time.Hour,
		Clock:         fixedClock,
	})
	if err != nil {
		t.Fatalf("failed to construct token issuer: %v", err)
	}
	identities, err := users.NewService(users.ServiceConfig{Database: db, Clock: fixedClock})
	if err != nil {
		t.Fatalf("failed to construct users service: %v", err)
	}

	deps := Dependencies{
		SessionValidator:  validator,
		Identities:        identities,
		Actions:           service,
		Realtime:          realtime,
		HeartbeatInterval: time.Hour,
		Logger:            zap.NewNop(),
	}
	for _, option := range options {
		option(&deps)
	}
	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return &testServer{handler: handler, db: db, issuer: issuer, realtime: realtime}
}

func (s *testServer) token(t *testing.T, wallet string) string {
	t.Helper()
	token, _, err := s.issuer.IssueSessionToken(wallet)
	if err != nil {
		t.Fatalf("failed to issue session token: %v", err)
	}
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func (s *testServer) expectedSignal(t *testing.T, token, action, query string) string {
	t.Helper()
	recorder := s.do(t, http.MethodGet, "/signals/"+action+"?"+query, token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("signal preview for %s failed: %d %s", action, recorder.Code, recorder.Body.String())
	}
	var response signalResponse
	decode(t, recorder, &response)
	return response.Signal
}

func (s *testServer) postQuestion(t *testing.T, token, nullifier string) noteResponse {
	t.Helper()
	signal := s.expectedSignal(t, token, "post-question", "category_id=cat-self")
	recorder := s.do(t, http.MethodPost, "/questions", token, gin.H{
		"category_id": "cat-self",
		"text":        "why is the sky blue?",
		"signal":      signal,
		"proof":       stubProof{Nullifier: nullifier},
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("post question failed: %d %s", recorder.Code, recorder.Body.String())
	}
	var question noteResponse
	decode(t, recorder, &question)
	return question
}

func (s *testServer) postAnswer(t *testing.T, token, questionID, nullifier string) noteResponse {
	t.Helper()
	signal := s.expectedSignal(t, token, "post-answer", "question_id="+questionID)
	recorder := s.do(t, http.MethodPost, "/questions/"+questionID+"/answers", token, gin.H{
		"text":   "scattering",
		"signal": signal,
		"proof":  stubProof{Nullifier: nullifier},
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("post answer failed: %d %s", recorder.Code, recorder.Body.String())
	}
	var answer noteResponse
	decode(t, recorder, &answer)
	return answer
}

func decode(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func requireError(t *testing.T, recorder *httptest.ResponseRecorder, status int, code string) map[string]string {
	t.Helper()
	if recorder.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, recorder.Code, recorder.Body.String())
	}
	var body map[string]string
	decode(t, recorder, &body)
	if body["error"] != code {
		t.Fatalf("expected error code %q, got %q", code, body["error"])
	}
	return body
}
