package data

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/threadbot/threadbot/internal/biz/repo"
)

const askSystemPrompt = "You are a helpful member of a group chat. Answer briefly in plain text, without markdown."

// openAIAsk answers questions through an OpenAI-compatible chat completion API
type openAIAsk struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewAskRepo creates an ask repository. It returns nil when no API key is configured.
func NewAskRepo(apiKey, baseURL, model string) repo.AskRepo {
	if apiKey == "" {
		return nil
	}
	if model == "" {
		model = openai.GPT4oMini
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &openAIAsk{
		client:  openai.NewClientWithConfig(config),
		model:   model,
		timeout: 30 * time.Second,
	}
}

// Ask sends a question and returns the model's answer
func (r *openAIAsk) Ask(ctx context.Context, question string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: askSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: question},
		},
		Temperature: 0.3,
		MaxTokens:   400,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
