package llm

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// LLM represents a generic interface for interacting with LLMs
type LLM interface {
	// Query sends one user message and returns the assistant reply
	Query(ctx context.Context, model, text string) (string, error)
}

var ErrEmptyReply = errors.New("llm returned an empty reply")

// OpenAIHandler talks to any OpenAI compatible chat completion endpoint
type OpenAIHandler struct {
	client    *openai.Client
	systemMsg string
	logger    *logrus.Logger
	maxTokens int
}

// NewOpenAIHandler baseURL 为空时使用官方地址
func NewOpenAIHandler(apiKey, baseURL, systemPrompt string, logger *logrus.Logger) *OpenAIHandler {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &OpenAIHandler{
		client:    openai.NewClientWithConfig(cfg),
		systemMsg: systemPrompt,
		logger:    logger,
		maxTokens: 200,
	}
}

func (h *OpenAIHandler) Query(ctx context.Context, model, text string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if h.systemMsg != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: h.systemMsg})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})

	resp, err := h.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   h.maxTokens,
		Temperature: 0.9,
	})
	if err != nil {
		h.logger.WithError(err).WithField("model", model).Warn("chat completion failed")
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", ErrEmptyReply
	}
	h.logger.WithFields(logrus.Fields{
		"model":  model,
		"tokens": resp.Usage.TotalTokens,
	}).Debug("chat completion done")
	return reply, nil
}
