package service

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"genshai/model"
	"genshai/platform"

	"github.com/gin-gonic/gin"
)

var logger = platform.Logger

// HistoryLimit bounds how many prior messages are replayed to the model.
const HistoryLimit = 30

// ChatStore is what the relay needs from the persistence layer.
type ChatStore interface {
	CreateConversation(conv *model.Conversation) error
	LatestConversation(agentID, userID, userSession string) (*model.Conversation, error)
	TouchConversation(id string) error
	SetConversationTitle(id, title string) error
	CreateMessage(msg *model.Message) error
	RecentMessages(conversationID string, limit int) ([]model.Message, error)
	Messages(conversationID string) ([]model.Message, error)
}

type IncomingMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /v1/chat. The client sends only the newest
// turn; prior history is reloaded from the store.
type ChatRequest struct {
	AgentID            string            `json:"agentId" binding:"required"`
	Messages           []IncomingMessage `json:"messages" binding:"required"`
	ConversationID     string            `json:"conversationId"`
	UserSession        string            `json:"userSession"`
	UserID             string            `json:"userId"`
	Model              string            `json:"model"`
	CustomSystemPrompt string            `json:"customSystemPrompt"`
}

// RelayError is a pre-stream failure carrying the HTTP status the controller
// should answer with. Once streaming has begun errors can no longer change
// the response status.
type RelayError struct {
	Status  int
	Message string
}

func (e *RelayError) Error() string {
	return e.Message
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatService struct {
	store    ChatStore
	gateway  platform.Gateway
	client   *http.Client
	notifier *Notifier
	titles   *TitleService
}

func NewChatService(store ChatStore, gateway platform.Gateway) *ChatService {
	return &ChatService{
		store:   store,
		gateway: gateway,
		client:  &http.Client{},
	}
}

// SetNotifier attaches the operator alert channel for quota exhaustion.
func (s *ChatService) SetNotifier(n *Notifier) {
	s.notifier = n
}

// SetTitleService enables title generation for new conversations.
func (s *ChatService) SetTitleService(t *TitleService) {
	s.titles = t
}

// StreamChat runs one chat turn: resolve the conversation, record the user
// message, call the gateway with the bounded history and pipe the token
// stream back while accumulating the full reply for one trailing write.
//
// A returned *RelayError means nothing was streamed yet and the controller
// still owns the response.
func (s *ChatService) StreamChat(c *gin.Context, req *ChatRequest) error {
	requestID := c.GetString("requestId")

	userText := newestUserText(req.Messages)
	if strings.TrimSpace(userText) == "" {
		return &RelayError{Status: http.StatusBadRequest, Message: "a user message is required"}
	}
	if req.UserID == "" && req.UserSession == "" {
		return &RelayError{Status: http.StatusBadRequest, Message: "userSession is required for anonymous callers"}
	}
	if s.gateway.BaseURL == "" || s.gateway.APIKey == "" {
		logger.Warnf("[%s] LLM gateway is not configured", requestID)
		return &RelayError{Status: http.StatusInternalServerError, Message: "model gateway is not configured"}
	}

	conversationID := req.ConversationID
	newConversation := false
	if conversationID == "" {
		conv := &model.Conversation{
			AgentID:     req.AgentID,
			UserID:      req.UserID,
			UserSession: req.UserSession,
		}
		if err := s.store.CreateConversation(conv); err != nil {
			logger.Warnf("[%s] failed to create conversation: %s", requestID, err)
			return &RelayError{Status: http.StatusInternalServerError, Message: "failed to create conversation"}
		}
		conversationID = conv.ID
		newConversation = true
	}

	// History is read before the new message is written so the new turn
	// appears exactly once in the assembled context.
	history, err := s.store.RecentMessages(conversationID, HistoryLimit)
	if err != nil {
		logger.Warnf("[%s] failed to load history: %s", requestID, err)
		return &RelayError{Status: http.StatusInternalServerError, Message: "failed to load history"}
	}

	// The question is durably recorded before the model sees it. A turn the
	// store cannot record must not reach the model.
	if err := s.store.CreateMessage(&model.Message{
		ConversationID: conversationID,
		Role:           model.RoleUser,
		Content:        userText,
	}); err != nil {
		logger.Warnf("[%s] failed to record user message: %s", requestID, err)
		return &RelayError{Status: http.StatusInternalServerError, Message: "failed to record message"}
	}

	modelID := req.Model
	if modelID == "" {
		modelID = s.gateway.DefaultModel
	}
	prompt := ResolveSystemPrompt(req.AgentID, req.CustomSystemPrompt)

	messages := make([]chatMessage, 0, len(history)+2)
	messages = append(messages, chatMessage{Role: "system", Content: prompt})
	for _, m := range history {
		messages = append(messages, chatMessage{Role: m.Role.APIRole(), Content: m.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userText})

	payload, err := json.Marshal(map[string]any{
		"model":    modelID,
		"messages": messages,
		"stream":   true,
	})
	if err != nil {
		return &RelayError{Status: http.StatusInternalServerError, Message: "failed to encode upstream request"}
	}

	url := strings.TrimSuffix(s.gateway.BaseURL, "/") + "/chat/completions"
	upstreamReq, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &RelayError{Status: http.StatusInternalServerError, Message: "failed to build upstream request"}
	}
	upstreamReq.Header.Set("Content-Type", "application/json")
	upstreamReq.Header.Set("Authorization", "Bearer "+s.gateway.APIKey)
	upstreamReq.Header.Set("Accept", "text/event-stream")

	resp, err := s.client.Do(upstreamReq)
	if err != nil {
		platform.UpstreamErrorsTotal.WithLabelValues("transport").Inc()
		logger.Warnf("[%s] upstream request failed: %s", requestID, err)
		return &RelayError{Status: http.StatusInternalServerError, Message: "upstream model call failed"}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return s.classifyUpstreamError(requestID, resp.StatusCode, body)
	}

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Conversation-Id", conversationID)
	w.WriteHeader(http.StatusOK)

	start := time.Now()
	reader := bufio.NewReader(resp.Body)
	var acc strings.Builder
	var aborted, sawDone bool
	var readErr error

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			// Write-through first, then accumulate. Malformed frames are
			// forwarded verbatim and skipped for accumulation.
			if _, werr := w.Write(line); werr != nil {
				aborted = true
				break
			}
			w.Flush()
			delta, done := parseFrame(line)
			acc.WriteString(delta)
			if done {
				sawDone = true
			}
		}
		if err != nil {
			readErr = err
			break
		}
		if sawDone {
			break
		}
	}
	platform.StreamDuration.Observe(time.Since(start).Seconds())

	if c.Request.Context().Err() != nil {
		aborted = true
	}
	if aborted || (readErr != nil && readErr != io.EOF) {
		// Lossy on disconnect: a partial reply is worse than no reply.
		platform.ChatTurnsTotal.WithLabelValues("interrupted").Inc()
		logger.Infof("[%s] stream interrupted, partial reply discarded", requestID)
		return nil
	}

	reply := strings.TrimSpace(acc.String())
	if reply == "" {
		platform.ChatTurnsTotal.WithLabelValues("empty").Inc()
		return nil
	}

	// The trailing write runs inside the handler so the platform does not
	// tear the request down before the reply is durable. The client stream
	// is already finished; a failure here is logged, never surfaced.
	if err := s.store.CreateMessage(&model.Message{
		ConversationID: conversationID,
		Role:           model.RoleAgent,
		Content:        reply,
	}); err != nil {
		platform.ChatTurnsTotal.WithLabelValues("persist_failed").Inc()
		logger.Warnf("[%s] failed to persist agent reply: %s", requestID, err)
		return nil
	}
	if err := s.store.TouchConversation(conversationID); err != nil {
		logger.Warnf("[%s] failed to touch conversation %s: %s", requestID, conversationID, err)
	}
	platform.ChatTurnsTotal.WithLabelValues("ok").Inc()

	if newConversation && s.titles != nil {
		go s.titles.Generate(conversationID, userText, reply)
	}
	return nil
}

// newestUserText picks the content of the last user-role entry. Clients send
// exactly one, but trailing non-user entries are tolerated.
func newestUserText(messages []IncomingMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

func (s *ChatService) classifyUpstreamError(requestID string, status int, body []byte) *RelayError {
	msg := upstreamErrorMessage(body)
	switch status {
	case http.StatusTooManyRequests:
		platform.UpstreamErrorsTotal.WithLabelValues("rate_limited").Inc()
		logger.Warnf("[%s] upstream rate limited: %s", requestID, msg)
		return &RelayError{Status: http.StatusTooManyRequests, Message: "rate limited by the model gateway, retry shortly"}
	case http.StatusPaymentRequired:
		platform.UpstreamErrorsTotal.WithLabelValues("quota_exhausted").Inc()
		logger.Warnf("[%s] upstream quota exhausted: %s", requestID, msg)
		if s.notifier != nil {
			s.notifier.QuotaExhausted(msg)
		}
		return &RelayError{Status: http.StatusPaymentRequired, Message: "model gateway quota exhausted"}
	default:
		platform.UpstreamErrorsTotal.WithLabelValues("upstream").Inc()
		logger.Warnf("[%s] upstream returned %d: %s", requestID, status, msg)
		return &RelayError{Status: http.StatusInternalServerError, Message: "upstream model call failed"}
	}
}

func upstreamErrorMessage(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return strings.TrimSpace(string(body))
}

var doneSentinel = []byte("[DONE]")

// parseFrame extracts the incremental text delta from one stream line.
// Non-data lines, role-only and finish frames yield an empty delta; the
// [DONE] sentinel sets done.
func parseFrame(line []byte) (delta string, done bool) {
	trimmed := bytes.TrimSpace(line)
	if !bytes.HasPrefix(trimmed, []byte("data:")) {
		return "", false
	}
	payload := bytes.TrimSpace(trimmed[len("data:"):])
	if len(payload) == 0 {
		return "", false
	}
	if bytes.Equal(payload, doneSentinel) {
		return "", true
	}

	var frame struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(payload, &frame); err != nil {
		return "", false
	}
	if len(frame.Choices) == 0 {
		return "", false
	}
	return frame.Choices[0].Delta.Content, false
}
