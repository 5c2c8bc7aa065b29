package platform

import (
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var (
	LLMClient *openai.Client
)

// Gateway holds what the streaming relay needs to talk to the LLM gateway
// directly. The relay issues its own HTTP request so it can pass the
// upstream event stream through byte for byte.
type Gateway struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
}

func InitLLMClient() {
	LLMClient = openai.NewClient(
		option.WithBaseURL(os.Getenv("LLM_BASE_URL")),
		option.WithAPIKey(os.Getenv("LLM_API_KEY")),
	)
}

// GatewayFromEnv reads the gateway settings used by the chat relay.
func GatewayFromEnv() Gateway {
	model := os.Getenv("CHAT_MODEL")
	if model == "" {
		model = "qwen-turbo"
	}
	return Gateway{
		BaseURL:      os.Getenv("LLM_BASE_URL"),
		APIKey:       os.Getenv("LLM_API_KEY"),
		DefaultModel: model,
	}
}
