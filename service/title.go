package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"genshai/platform"

	"github.com/openai/openai-go"
)

// TitleService names a conversation after its first completed turn. Best
// effort: failures are logged and the conversation keeps an empty title.
type TitleService struct {
	store ChatStore
	model string
}

func NewTitleService(store ChatStore, model string) *TitleService {
	return &TitleService{store: store, model: model}
}

func (t *TitleService) Generate(conversationID, question, answer string) {
	if platform.LLMClient == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{}),
		Model:    openai.F(t.model),
	}
	prompt := fmt.Sprintf("Question: %s\n\nAnswer: %s", clip(question, 500), clip(answer, 500))
	for _, m := range []struct {
		role    openai.ChatCompletionMessageParamRole
		content string
	}{
		{"system", "You name chat conversations. Reply with only a title of at most six words."},
		{"user", prompt},
	} {
		var content any = m.content
		params.Messages.Value = append(params.Messages.Value, openai.ChatCompletionMessageParam{
			Role:    openai.F(m.role),
			Content: openai.F(content),
		})
	}

	completion, err := platform.LLMClient.Chat.Completions.New(ctx, params)
	if err != nil {
		logger.Warnf("[title] completion for conversation %s failed: %s", conversationID, err)
		return
	}
	if len(completion.Choices) == 0 {
		return
	}

	title := strings.Trim(strings.TrimSpace(completion.Choices[0].Message.Content), `"`)
	if title == "" {
		return
	}
	title = clip(title, 255)
	if err := t.store.SetConversationTitle(conversationID, title); err != nil {
		logger.Warnf("[title] failed to store title for conversation %s: %s", conversationID, err)
	}
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
