package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/feishu-bots/larkbot/internal/db"
	"github.com/feishu-bots/larkbot/internal/dedup"
	"github.com/feishu-bots/larkbot/internal/deliveries"
	"github.com/feishu-bots/larkbot/internal/feishu"
	"github.com/feishu-bots/larkbot/internal/llm"
)

// mockProvider records completion calls and returns a canned reply.
type mockProvider struct {
	mu    sync.Mutex
	calls []llm.CompletionRequest
	reply string
	err   error
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	return &llm.CompletionResponse{Content: m.reply, FinishReason: "STOP"}, nil
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// fakePlatform is an httptest stand-in for the Feishu open platform. It
// counts token and reply calls and records reply bodies.
type fakePlatform struct {
	mu          sync.Mutex
	tokenCalls  int
	replyCalls  int
	replyPaths  []string
	replyBodies []map[string]string
	failToken   bool
	failReply   bool
	srv         *httptest.Server
}

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()
	f := &fakePlatform{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch {
		case strings.Contains(r.URL.Path, "tenant_access_token"):
			f.tokenCalls++
			if f.failToken {
				w.Write([]byte(`{"code": 99991663, "msg": "app secret invalid"}`))
				return
			}
			w.Write([]byte(`{"code": 0, "msg": "ok", "tenant_access_token": "t-test"}`))
		case strings.Contains(r.URL.Path, "/reply"):
			f.replyCalls++
			f.replyPaths = append(f.replyPaths, r.URL.Path)
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			f.replyBodies = append(f.replyBodies, body)
			if f.failReply {
				w.Write([]byte(`{"code": 230002, "msg": "bot not in chat"}`))
				return
			}
			w.Write([]byte(`{"code": 0, "msg": "success"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakePlatform) counts() (token, reply int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenCalls, f.replyCalls
}

type fixture struct {
	handler  *WebhookHandler
	provider *mockProvider
	platform *fakePlatform
	store    *dedup.Store
	log      *deliveries.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	provider := &mockProvider{reply: "hi there"}
	platform := newFakePlatform(t)
	store := dedup.NewStore(database)
	logStore := deliveries.NewStore(database)
	client := feishu.NewClient("app-1", "secret-1", platform.srv.URL)

	processor := NewProcessor(provider, "gemini-pro", 100, client, store, logStore)
	return &fixture{
		handler:  NewWebhookHandler(processor, logStore),
		provider: provider,
		platform: platform,
		store:    store,
		log:      logStore,
	}
}

func (f *fixture) deliver(t *testing.T, payload string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/event", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.handler.HandleEvent(w, req)
	return w
}

func messagePayload(id, text string) string {
	content, _ := json.Marshal(map[string]string{"text": text})
	quoted, _ := json.Marshal(string(content))
	return fmt.Sprintf(`{"event": {"message": {"message_id": %q, "content": %s}}}`, id, quoted)
}

// --- Handshake ---

func TestHandshakeEchoesChallenge(t *testing.T) {
	f := newFixture(t)

	w := f.deliver(t, `{"challenge": "nonce-1", "type": "url_verification"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["challenge"] != "nonce-1" {
		t.Errorf("challenge: got %q", resp["challenge"])
	}

	// No processed record, no outbound calls, no generation.
	if f.provider.callCount() != 0 {
		t.Error("handshake must not trigger generation")
	}
	tok, rep := f.platform.counts()
	if tok != 0 || rep != 0 {
		t.Errorf("handshake must not call the platform, got token=%d reply=%d", tok, rep)
	}
	seen, err := f.store.HasProcessed(context.Background(), "")
	if err != nil {
		t.Fatalf("HasProcessed: %v", err)
	}
	if seen {
		t.Error("handshake must not write a processed record")
	}
}

// --- Happy path ---

func TestProcessMessage(t *testing.T) {
	f := newFixture(t)

	w := f.deliver(t, messagePayload("m1", "hello"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	seen, err := f.store.HasProcessed(context.Background(), "m1")
	if err != nil {
		t.Fatalf("HasProcessed: %v", err)
	}
	if !seen {
		t.Error("expected processed record for m1")
	}

	tok, rep := f.platform.counts()
	if tok != 1 {
		t.Errorf("expected 1 token call, got %d", tok)
	}
	if rep != 1 {
		t.Errorf("expected 1 reply call, got %d", rep)
	}
	if f.platform.replyPaths[0] != "/open-apis/im/v1/messages/m1/reply" {
		t.Errorf("reply addressed to %q", f.platform.replyPaths[0])
	}
	body := f.platform.replyBodies[0]
	if body["msg_type"] != "text" {
		t.Errorf("msg_type: got %q", body["msg_type"])
	}
	if body["content"] != `{"text":"hi there"}` {
		t.Errorf("content: got %q", body["content"])
	}
}

func TestGenerationRequestShape(t *testing.T) {
	f := newFixture(t)

	f.deliver(t, messagePayload("m1", "hello"))

	if f.provider.callCount() != 1 {
		t.Fatalf("expected 1 generation call, got %d", f.provider.callCount())
	}
	req := f.provider.calls[0]
	if req.MaxTokens != 100 {
		t.Errorf("expected max tokens 100, got %d", req.MaxTokens)
	}
	if len(req.Messages) != 3 {
		t.Fatalf("expected seed history + user message, got %d messages", len(req.Messages))
	}
	if req.Messages[0].Role != llm.RoleUser || req.Messages[1].Role != llm.RoleAssistant {
		t.Error("seed history roles out of order")
	}
	last := req.Messages[2]
	if last.Role != llm.RoleUser || last.Content != "hello" {
		t.Errorf("last message should be the live user text, got %+v", last)
	}
}

// --- Dedup ---

func TestDuplicateDeliveryAbsorbed(t *testing.T) {
	f := newFixture(t)

	if w := f.deliver(t, messagePayload("m1", "hello")); w.Code != http.StatusOK {
		t.Fatalf("first delivery: %d", w.Code)
	}
	if w := f.deliver(t, messagePayload("m1", "hello")); w.Code != http.StatusOK {
		t.Fatalf("duplicate delivery should succeed silently, got %d", w.Code)
	}

	if f.provider.callCount() != 1 {
		t.Errorf("duplicate must not re-generate, got %d calls", f.provider.callCount())
	}
	tok, rep := f.platform.counts()
	if tok != 1 {
		t.Errorf("duplicate must not re-fetch token, got %d calls", tok)
	}
	if rep != 1 {
		t.Errorf("expected exactly one reply total, got %d", rep)
	}

	n, err := f.log.CountByOutcome(context.Background(), deliveries.OutcomeDuplicate)
	if err != nil {
		t.Fatalf("CountByOutcome: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 duplicate logged, got %d", n)
	}
}

func TestDistinctMessagesEachReplied(t *testing.T) {
	f := newFixture(t)

	f.deliver(t, messagePayload("m1", "hello"))
	f.deliver(t, messagePayload("m2", "world"))

	_, rep := f.platform.counts()
	if rep != 2 {
		t.Errorf("expected 2 replies for distinct messages, got %d", rep)
	}
}

// --- Failure ordering ---

func TestGenerationFailureClaimsNothing(t *testing.T) {
	f := newFixture(t)
	f.provider.err = fmt.Errorf("backend unavailable")

	w := f.deliver(t, messagePayload("m1", "hello"))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}

	seen, err := f.store.HasProcessed(context.Background(), "m1")
	if err != nil {
		t.Fatalf("HasProcessed: %v", err)
	}
	if seen {
		t.Error("generation failure must not claim the record")
	}
	tok, rep := f.platform.counts()
	if tok != 0 || rep != 0 {
		t.Errorf("generation failure must abort before platform calls, got token=%d reply=%d", tok, rep)
	}

	// A retried delivery proceeds once the backend recovers.
	f.provider.err = nil
	if w := f.deliver(t, messagePayload("m1", "hello")); w.Code != http.StatusOK {
		t.Fatalf("retry after recovery: %d", w.Code)
	}
	_, rep = f.platform.counts()
	if rep != 1 {
		t.Errorf("expected the retry to reply once, got %d", rep)
	}
}

func TestTokenFailureClaimsNothing(t *testing.T) {
	f := newFixture(t)
	f.platform.failToken = true

	w := f.deliver(t, messagePayload("m1", "hello"))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}

	seen, _ := f.store.HasProcessed(context.Background(), "m1")
	if seen {
		t.Error("token failure must not claim the record")
	}
	_, rep := f.platform.counts()
	if rep != 0 {
		t.Errorf("token failure must abort before the reply call, got %d", rep)
	}
}

func TestReplyFailureKeepsClaim(t *testing.T) {
	f := newFixture(t)
	f.platform.failReply = true

	w := f.deliver(t, messagePayload("m1", "hello"))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}

	// The claim is not rolled back: the record exists even though no reply
	// was ever delivered.
	seen, err := f.store.HasProcessed(context.Background(), "m1")
	if err != nil {
		t.Fatalf("HasProcessed: %v", err)
	}
	if !seen {
		t.Error("claim must survive a reply failure")
	}

	// A retried identical delivery is swallowed.
	f.platform.failReply = false
	if w := f.deliver(t, messagePayload("m1", "hello")); w.Code != http.StatusOK {
		t.Fatalf("retry: %d", w.Code)
	}
	if f.provider.callCount() != 1 {
		t.Errorf("swallowed retry must not re-generate, got %d calls", f.provider.callCount())
	}
	_, rep := f.platform.counts()
	if rep != 1 {
		t.Errorf("swallowed retry must not reply, got %d reply calls", rep)
	}
}

// --- Malformed input ---

func TestMalformedContentFailsEarly(t *testing.T) {
	f := newFixture(t)

	payload := `{"event": {"message": {"message_id": "m1", "content": "not-json"}}}`
	w := f.deliver(t, payload)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	seen, _ := f.store.HasProcessed(context.Background(), "m1")
	if seen {
		t.Error("malformed content must not write a record")
	}
	if f.provider.callCount() != 0 {
		t.Error("malformed content must not trigger generation")
	}
	tok, rep := f.platform.counts()
	if tok != 0 || rep != 0 {
		t.Errorf("malformed content must not call the platform, got token=%d reply=%d", tok, rep)
	}
}

func TestMalformedBodyRejected(t *testing.T) {
	f := newFixture(t)

	w := f.deliver(t, "{invalid")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestMissingMessageRejected(t *testing.T) {
	f := newFixture(t)

	w := f.deliver(t, `{"event": {}}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

// --- Claim race ---

func TestPreclaimedMessageSendsNoReply(t *testing.T) {
	f := newFixture(t)

	// A record claimed out of band (e.g. by a concurrent delivery) must
	// silence this delivery.
	if _, err := f.store.Claim(context.Background(), "m1"); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	w := f.deliver(t, messagePayload("m1", "hello"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected silent 200, got %d", w.Code)
	}
	_, rep := f.platform.counts()
	if rep != 0 {
		t.Errorf("losing delivery must not reply, got %d", rep)
	}
}
