package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/humanity"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/ledger"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/humanqa/backend/internal/signals"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ownerID  = "0x1111111111111111111111111111111111111111"
	helperID = "0x2222222222222222222222222222222222222222"
	readerID = "0x3333333333333333333333333333333333333333"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(value time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = value
}

type sequenceIDProvider struct {
	prefix string
	next   atomic.Int64
}

func (p *sequenceIDProvider) NewID() (string, error) {
	return fmt.Sprintf("%s-%d", p.prefix, p.next.Add(1)), nil
}

type proofPayload struct {
	Nullifier string `json:"nullifier"`
}

// stubVerifier accepts every proof and echoes the nullifier embedded in the payload
// unless verify overrides the verdict.
type stubVerifier struct {
	mu       sync.Mutex
	requests []humanity.Request
	verify   func(ctx context.Context, request humanity.Request) (humanity.Result, error)
}

func (v *stubVerifier) Verify(ctx context.Context, request humanity.Request) (humanity.Result, error) {
	v.mu.Lock()
	v.requests = append(v.requests, request)
	verify := v.verify
	v.mu.Unlock()
	if verify != nil {
		return verify(ctx, request)
	}
	var payload proofPayload
	if err := json.Unmarshal(request.Proof, &payload); err != nil {
		return humanity.Result{Accepted: false, FailureCode: humanity.FailureInvalidProof}, nil
	}
	return humanity.Result{Accepted: true, Nullifier: payload.Nullifier}, nil
}

func (v *stubVerifier) Calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.requests)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Publish(event Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) Events() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Event(nil), n.events...)
}

type testHarness struct {
	service  *Service
	db       *gorm.DB
	verifier *stubVerifier
	clock    *testClock
	notifier *recordingNotifier
}

func newTestHarness(t *testing.T, options ...func(*ServiceConfig)) *testHarness {
	t.Helper()
	dsn := fmt.Sprintf("file:actions_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	return newTestHarnessWithDSN(t, dsn, options...)
}

// newFileTestHarness backs the harness with a file so the schema survives a
// connection the driver discards after a cancelled statement.
func newFileTestHarness(t *testing.T, options ...func(*ServiceConfig)) *testHarness {
	t.Helper()
	return newTestHarnessWithDSN(t, filepath.Join(t.TempDir(), "actions.db"), options...)
}

func newTestHarnessWithDSN(t *testing.T, dsn string, options ...func(*ServiceConfig)) *testHarness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	models := append(notes.Models(), &ledger.ActionProofRecord{})
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := &testClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	guard, err := ledger.NewGuard(ledger.GuardConfig{IDProvider: &sequenceIDProvider{prefix: "proof"}, Clock: clock.Now})
	if err != nil {
		t.Fatalf("failed to construct guard: %v", err)
	}
	harness := &testHarness{
		db:       db,
		verifier: &stubVerifier{},
		clock:    clock,
		notifier: &recordingNotifier{},
	}
	cfg := ServiceConfig{
		Database:      db,
		Verifier:      harness.verifier,
		Guard:         guard,
		Signals:       signals.NewPolicy(signals.Config{Clock: clock.Now}),
		IDProvider:    &sequenceIDProvider{prefix: "note"},
		Notifier:      harness.notifier,
		OracleTimeout: time.Second,
		TxTimeout:     5 * time.Second,
		Clock:         clock.Now,
		Logger:        zap.NewNop(),
	}
	for _, option := range options {
		option(&cfg)
	}
	service, err := NewService(cfg)
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	harness.service = service
	return harness
}

func proofFor(signal, nullifier string) Proof {
	return Proof{Signal: signal, Payload: json.RawMessage(fmt.Sprintf(`{"nullifier":%q}`, nullifier))}
}

func (h *testHarness) postQuestion(t *testing.T, owner, nullifier string) notes.Note {
	t.Helper()
	signal := "cat-self:" + h.clock.Now().Format("2006-01-02")
	question, err := h.service.PostQuestion(context.Background(), owner, PostQuestionInput{
		CategoryID: "cat-self",
		Text:       "Is this a question?",
		Proof:      proofFor(signal, nullifier),
	})
	if err != nil {
		t.Fatalf("failed to post question: %v", err)
	}
	return question
}

func (h *testHarness) postAnswer(t *testing.T, questionID, author, nullifier string) notes.Note {
	t.Helper()
	signal := questionID + ":" + h.clock.Now().Format("2006-01-02")
	answer, err := h.service.PostAnswer(context.Background(), author, PostAnswerInput{
		QuestionID: questionID,
		Text:       "It is.",
		Proof:      proofFor(signal, nullifier),
	})
	if err != nil {
		t.Fatalf("failed to post answer: %v", err)
	}
	return answer
}

func (h *testHarness) note(t *testing.T, noteID string) notes.Note {
	t.Helper()
	note, err := notes.Load(h.db, noteID)
	if err != nil {
		t.Fatalf("failed to load note %s: %v", noteID, err)
	}
	return note
}

func (h *testHarness) ledgerRows(t *testing.T, action signals.Action) int64 {
	t.Helper()
	var count int64
	if err := h.db.Model(&ledger.ActionProofRecord{}).Where("action = ?", action.String()).Count(&count).Error; err != nil {
		t.Fatalf("failed to count ledger rows: %v", err)
	}
	return count
}

func requireServiceError(t *testing.T, err error, kind ErrorKind, code string) *ServiceError {
	t.Helper()
	serviceErr, ok := AsServiceError(err)
	if !ok {
		t.Fatalf("expected service error %s/%s, got %v", kind, code, err)
	}
	if serviceErr.Kind() != kind || serviceErr.Code() != code {
		t.Fatalf("expected %s/%s, got %s/%s (%v)", kind, code, serviceErr.Kind(), serviceErr.Code(), err)
	}
	return serviceErr
}

// barrierVerifier holds every call until parties calls have arrived, so concurrent
// requests all pass their pre-checks before any of them commits.
func barrierVerifier(parties int) func(ctx context.Context, request humanity.Request) (humanity.Result, error) {
	var arrived sync.WaitGroup
	arrived.Add(parties)
	return func(ctx context.Context, request humanity.Request) (humanity.Result, error) {
		arrived.Done()
		released := make(chan struct{})
		go func() {
			arrived.Wait()
			close(released)
		}()
		select {
		case <-released:
		case <-ctx.Done():
			return humanity.Result{}, ctx.Err()
		}
		var payload proofPayload
		if err := json.Unmarshal(request.Proof, &payload); err != nil {
			return humanity.Result{}, err
		}
		return humanity.Result{Accepted: true, Nullifier: payload.Nullifier}, nil
	}
}
