package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"genshai/model"
	"genshai/platform"

	"github.com/gin-gonic/gin"
)

// mockChatStore is an in-memory ChatStore for relay tests.
type mockChatStore struct {
	mu            sync.Mutex
	conversations map[string]*model.Conversation
	messages      map[string][]model.Message
	titles        map[string]string
	createConvErr error
	userMsgErr    error
	agentMsgErr   error
	nextConv      int
	nextMsg       uint
}

func newMockChatStore() *mockChatStore {
	return &mockChatStore{
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]model.Message),
		titles:        make(map[string]string),
	}
}

func (m *mockChatStore) CreateConversation(conv *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createConvErr != nil {
		return m.createConvErr
	}
	m.nextConv++
	if conv.ID == "" {
		conv.ID = fmt.Sprintf("conv-%d", m.nextConv)
	}
	conv.CreatedAt = time.Now()
	m.conversations[conv.ID] = conv
	return nil
}

func (m *mockChatStore) LatestConversation(agentID, userID, userSession string) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *model.Conversation
	for _, conv := range m.conversations {
		if conv.AgentID != agentID {
			continue
		}
		if userID != "" {
			if conv.UserID != userID {
				continue
			}
		} else if conv.UserSession != userSession {
			continue
		}
		if latest == nil || conv.CreatedAt.After(latest.CreatedAt) {
			latest = conv
		}
	}
	return latest, nil
}

func (m *mockChatStore) TouchConversation(id string) error {
	return nil
}

func (m *mockChatStore) SetConversationTitle(id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.titles[id] = title
	return nil
}

func (m *mockChatStore) CreateMessage(msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.Role == model.RoleUser && m.userMsgErr != nil {
		return m.userMsgErr
	}
	if msg.Role == model.RoleAgent && m.agentMsgErr != nil {
		return m.agentMsgErr
	}
	m.nextMsg++
	msg.ID = m.nextMsg
	msg.CreatedAt = time.Now()
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], *msg)
	return nil
}

func (m *mockChatStore) RecentMessages(conversationID string, limit int) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[conversationID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]model.Message(nil), msgs...), nil
}

func (m *mockChatStore) Messages(conversationID string) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Message(nil), m.messages[conversationID]...), nil
}

func (m *mockChatStore) countByRole(conversationID string, role model.Role) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.messages[conversationID] {
		if msg.Role == role {
			n++
		}
	}
	return n
}

// upstreamRecorder captures what the relay sent to the gateway.
type upstreamRecorder struct {
	mu       sync.Mutex
	calls    int
	payloads []upstreamPayload
}

type upstreamPayload struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

func (r *upstreamRecorder) record(req *http.Request) {
	var p upstreamPayload
	json.NewDecoder(req.Body).Decode(&p)
	r.mu.Lock()
	r.calls = r.calls + 1
	r.payloads = append(r.payloads, p)
	r.mu.Unlock()
}

func (r *upstreamRecorder) lastPayload() upstreamPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.payloads[len(r.payloads)-1]
}

func sseUpstream(rec *upstreamRecorder, lines ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if rec != nil {
			rec.record(req)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprint(w, line)
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}
}

var helloFrames = []string{
	"data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n",
	"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n",
	"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n",
	"data: [DONE]\n",
}

func chatContext(w http.ResponseWriter) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/chat", nil)
	c.Set("requestId", "test")
	return c
}

func newTestChatService(store ChatStore, upstreamURL string) *ChatService {
	return NewChatService(store, platform.Gateway{
		BaseURL:      upstreamURL,
		APIKey:       "test-key",
		DefaultModel: "test-model",
	})
}

func baseRequest() *ChatRequest {
	return &ChatRequest{
		AgentID:     "marcus-aurelius",
		Messages:    []IncomingMessage{{Role: "user", Content: "How do I stay calm?"}},
		UserSession: "s1",
	}
}

func TestStreamChatFrameRoundTrip(t *testing.T) {
	store := newMockChatStore()
	upstream := httptest.NewServer(sseUpstream(nil, helloFrames...))
	defer upstream.Close()
	svc := newTestChatService(store, upstream.URL)

	w := httptest.NewRecorder()
	c := chatContext(w)
	if err := svc.StreamChat(c, baseRequest()); err != nil {
		t.Fatalf("StreamChat returned %v", err)
	}

	convID := w.Header().Get("X-Conversation-Id")
	if convID == "" {
		t.Fatal("X-Conversation-Id header missing")
	}
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "data:") {
		t.Error("stream body should contain at least one data frame")
	}

	msgs, _ := store.Messages(convID)
	if len(msgs) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || msgs[0].Content != "How do I stay calm?" {
		t.Errorf("first message = %+v", msgs[0])
	}
	if msgs[1].Role != model.RoleAgent || msgs[1].Content != "Hello" {
		t.Errorf("agent message = %+v, want accumulated \"Hello\"", msgs[1])
	}

	// second serial turn against the returned conversation id keeps the
	// strict user/agent alternation
	req2 := baseRequest()
	req2.ConversationID = convID
	req2.Messages = []IncomingMessage{{Role: "user", Content: "And anger?"}}
	w2 := httptest.NewRecorder()
	if err := svc.StreamChat(chatContext(w2), req2); err != nil {
		t.Fatalf("second turn returned %v", err)
	}

	msgs, _ = store.Messages(convID)
	if len(msgs) != 4 {
		t.Fatalf("persisted %d messages after two turns, want 4", len(msgs))
	}
	wantRoles := []model.Role{model.RoleUser, model.RoleAgent, model.RoleUser, model.RoleAgent}
	for i, want := range wantRoles {
		if msgs[i].Role != want {
			t.Errorf("message %d role = %q, want %q", i, msgs[i].Role, want)
		}
	}
	if len(store.conversations) != 1 {
		t.Errorf("expected a single conversation, got %d", len(store.conversations))
	}
}

func TestStreamChatUpstreamFailureKeepsQuestion(t *testing.T) {
	cases := []struct {
		upstreamStatus int
		wantStatus     int
	}{
		{http.StatusTooManyRequests, http.StatusTooManyRequests},
		{http.StatusPaymentRequired, http.StatusPaymentRequired},
		{http.StatusInternalServerError, http.StatusInternalServerError},
		{http.StatusBadGateway, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		store := newMockChatStore()
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.upstreamStatus)
			fmt.Fprint(w, `{"error":{"message":"nope"}}`)
		}))
		svc := newTestChatService(store, upstream.URL)

		w := httptest.NewRecorder()
		err := svc.StreamChat(chatContext(w), baseRequest())

		var relayErr *RelayError
		if !errors.As(err, &relayErr) {
			t.Fatalf("upstream %d: expected RelayError, got %v", tc.upstreamStatus, err)
		}
		if relayErr.Status != tc.wantStatus {
			t.Errorf("upstream %d mapped to %d, want %d", tc.upstreamStatus, relayErr.Status, tc.wantStatus)
		}

		for id := range store.conversations {
			if got := store.countByRole(id, model.RoleUser); got != 1 {
				t.Errorf("upstream %d: user messages = %d, want 1", tc.upstreamStatus, got)
			}
			if got := store.countByRole(id, model.RoleAgent); got != 0 {
				t.Errorf("upstream %d: agent messages = %d, want 0", tc.upstreamStatus, got)
			}
		}
		upstream.Close()
	}
}

func TestStreamChatContextBound(t *testing.T) {
	store := newMockChatStore()
	rec := &upstreamRecorder{}
	upstream := httptest.NewServer(sseUpstream(rec, helloFrames...))
	defer upstream.Close()
	svc := newTestChatService(store, upstream.URL)

	// seed a long conversation: m1..m35 alternating user/agent
	conv := &model.Conversation{AgentID: "marcus-aurelius", UserSession: "s1"}
	store.CreateConversation(conv)
	for i := 1; i <= 35; i++ {
		role := model.RoleUser
		if i%2 == 0 {
			role = model.RoleAgent
		}
		store.CreateMessage(&model.Message{
			ConversationID: conv.ID,
			Role:           role,
			Content:        fmt.Sprintf("m%d", i),
		})
	}

	req := baseRequest()
	req.ConversationID = conv.ID
	req.Messages = []IncomingMessage{{Role: "user", Content: "newest question"}}
	if err := svc.StreamChat(chatContext(httptest.NewRecorder()), req); err != nil {
		t.Fatalf("StreamChat returned %v", err)
	}

	payload := rec.lastPayload()
	if !payload.Stream {
		t.Error("upstream call should request a stream")
	}
	if payload.Model != "test-model" {
		t.Errorf("model = %q, want default", payload.Model)
	}
	// system + 30 prior + new user message
	if len(payload.Messages) != HistoryLimit+2 {
		t.Fatalf("context size = %d, want %d", len(payload.Messages), HistoryLimit+2)
	}
	if payload.Messages[0].Role != "system" {
		t.Errorf("first context entry role = %q, want system", payload.Messages[0].Role)
	}
	if payload.Messages[1].Content != "m6" {
		t.Errorf("oldest history entry = %q, want m6", payload.Messages[1].Content)
	}
	if payload.Messages[HistoryLimit].Content != "m35" {
		t.Errorf("newest history entry = %q, want m35", payload.Messages[HistoryLimit].Content)
	}
	last := payload.Messages[len(payload.Messages)-1]
	if last.Role != "user" || last.Content != "newest question" {
		t.Errorf("new user message must come last, got %+v", last)
	}
	// stored agent role must cross the boundary as assistant
	if payload.Messages[1].Role != "assistant" {
		t.Errorf("agent history entry role = %q, want assistant", payload.Messages[1].Role)
	}
}

func TestStreamChatUnknownPersonaFallsBack(t *testing.T) {
	store := newMockChatStore()
	rec := &upstreamRecorder{}
	upstream := httptest.NewServer(sseUpstream(rec, helloFrames...))
	defer upstream.Close()
	svc := newTestChatService(store, upstream.URL)

	req := baseRequest()
	req.AgentID = "totally-unknown"
	w := httptest.NewRecorder()
	if err := svc.StreamChat(chatContext(w), req); err != nil {
		t.Fatalf("unknown persona should stream, got %v", err)
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if got := rec.lastPayload().Messages[0].Content; got != genericPrompt {
		t.Errorf("system prompt = %q, want generic fallback", got)
	}
}

func TestStreamChatClientAbortDiscardsPartialReply(t *testing.T) {
	store := newMockChatStore()
	wrote := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"par\"}}]}\n")
		w.(http.Flusher).Flush()
		close(wrote)
		<-r.Context().Done()
	}))
	defer upstream.Close()
	svc := newTestChatService(store, upstream.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-wrote
		cancel()
	}()

	w := httptest.NewRecorder()
	c := chatContext(w)
	c.Request = c.Request.WithContext(ctx)

	if err := svc.StreamChat(c, baseRequest()); err != nil {
		t.Fatalf("aborted stream should not error, got %v", err)
	}

	for id := range store.conversations {
		if got := store.countByRole(id, model.RoleAgent); got != 0 {
			t.Errorf("agent messages after abort = %d, want 0", got)
		}
		if got := store.countByRole(id, model.RoleUser); got != 1 {
			t.Errorf("user messages after abort = %d, want 1", got)
		}
	}
}

func TestStreamChatForwardsMalformedFrames(t *testing.T) {
	store := newMockChatStore()
	frames := []string{
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n",
		"data: {not json at all\n",
		": keep-alive comment\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n",
		"data: [DONE]\n",
	}
	upstream := httptest.NewServer(sseUpstream(nil, frames...))
	defer upstream.Close()
	svc := newTestChatService(store, upstream.URL)

	w := httptest.NewRecorder()
	if err := svc.StreamChat(chatContext(w), baseRequest()); err != nil {
		t.Fatalf("StreamChat returned %v", err)
	}

	body := w.Body.String()
	if !strings.Contains(body, "data: {not json at all") {
		t.Error("malformed frame should be forwarded verbatim")
	}
	if !strings.Contains(body, ": keep-alive comment") {
		t.Error("non-data line should be forwarded verbatim")
	}

	for id := range store.conversations {
		msgs, _ := store.Messages(id)
		if msgs[len(msgs)-1].Content != "Hello" {
			t.Errorf("accumulated reply = %q, want Hello", msgs[len(msgs)-1].Content)
		}
	}
}

func TestStreamChatWriteBeforeCall(t *testing.T) {
	store := newMockChatStore()
	store.userMsgErr = errors.New("store down")
	rec := &upstreamRecorder{}
	upstream := httptest.NewServer(sseUpstream(rec, helloFrames...))
	defer upstream.Close()
	svc := newTestChatService(store, upstream.URL)

	err := svc.StreamChat(chatContext(httptest.NewRecorder()), baseRequest())
	var relayErr *RelayError
	if !errors.As(err, &relayErr) || relayErr.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500 RelayError, got %v", err)
	}
	if rec.calls != 0 {
		t.Error("the model must never be called when the question cannot be recorded")
	}
}

func TestStreamChatConversationCreateFailure(t *testing.T) {
	store := newMockChatStore()
	store.createConvErr = errors.New("store down")
	rec := &upstreamRecorder{}
	upstream := httptest.NewServer(sseUpstream(rec, helloFrames...))
	defer upstream.Close()
	svc := newTestChatService(store, upstream.URL)

	err := svc.StreamChat(chatContext(httptest.NewRecorder()), baseRequest())
	var relayErr *RelayError
	if !errors.As(err, &relayErr) || relayErr.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500 RelayError, got %v", err)
	}
	if rec.calls != 0 {
		t.Error("no upstream call without a conversation to write against")
	}
}

func TestStreamChatEmptyReplyNotPersisted(t *testing.T) {
	store := newMockChatStore()
	frames := []string{
		"data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"   \"}}]}\n",
		"data: [DONE]\n",
	}
	upstream := httptest.NewServer(sseUpstream(nil, frames...))
	defer upstream.Close()
	svc := newTestChatService(store, upstream.URL)

	if err := svc.StreamChat(chatContext(httptest.NewRecorder()), baseRequest()); err != nil {
		t.Fatalf("StreamChat returned %v", err)
	}
	for id := range store.conversations {
		if got := store.countByRole(id, model.RoleAgent); got != 0 {
			t.Errorf("whitespace-only reply persisted, agent messages = %d", got)
		}
	}
}

func TestStreamChatTrailingPersistFailureIsSilent(t *testing.T) {
	store := newMockChatStore()
	store.agentMsgErr = errors.New("store down")
	upstream := httptest.NewServer(sseUpstream(nil, helloFrames...))
	defer upstream.Close()
	svc := newTestChatService(store, upstream.URL)

	w := httptest.NewRecorder()
	if err := svc.StreamChat(chatContext(w), baseRequest()); err != nil {
		t.Fatalf("trailing persist failure must not surface, got %v", err)
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestStreamChatValidation(t *testing.T) {
	store := newMockChatStore()
	svc := newTestChatService(store, "http://unused")

	// no user message
	req := baseRequest()
	req.Messages = nil
	err := svc.StreamChat(chatContext(httptest.NewRecorder()), req)
	var relayErr *RelayError
	if !errors.As(err, &relayErr) || relayErr.Status != http.StatusBadRequest {
		t.Errorf("missing message: got %v", err)
	}

	// no caller identity
	req = baseRequest()
	req.UserSession = ""
	err = svc.StreamChat(chatContext(httptest.NewRecorder()), req)
	if !errors.As(err, &relayErr) || relayErr.Status != http.StatusBadRequest {
		t.Errorf("missing identity: got %v", err)
	}

	// gateway not configured
	svc = NewChatService(store, platform.Gateway{})
	err = svc.StreamChat(chatContext(httptest.NewRecorder()), baseRequest())
	if !errors.As(err, &relayErr) || relayErr.Status != http.StatusInternalServerError {
		t.Errorf("missing gateway config: got %v", err)
	}
}

func TestParseFrame(t *testing.T) {
	cases := []struct {
		line      string
		wantDelta string
		wantDone  bool
	}{
		{"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n", "Hel", false},
		{"data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n", "", false},
		{"data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n", "", false},
		{"data: {\"choices\":[]}\n", "", false},
		{"data: [DONE]\n", "", true},
		{"data: [DONE]\r\n", "", true},
		{"data: {broken\n", "", false},
		{"\n", "", false},
		{": comment\n", "", false},
		{"event: ping\n", "", false},
		{"data:\n", "", false},
	}

	for _, tc := range cases {
		delta, done := parseFrame([]byte(tc.line))
		if delta != tc.wantDelta || done != tc.wantDone {
			t.Errorf("parseFrame(%q) = (%q, %v), want (%q, %v)", tc.line, delta, done, tc.wantDelta, tc.wantDone)
		}
	}
}
