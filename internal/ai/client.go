package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const motivationPrompt = `You write one short motivational line for a person starting their day with a training plan.
Rules: a single sentence, at most 20 words, no hashtags, no emojis, no quotation marks.`

type Client struct {
	client *openai.Client
	model  string
}

func New(apiKey, baseURL, model string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// Motivation asks the model for a fresh morning line.
func (c *Client) Motivation(ctx context.Context) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: motivationPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: "Give me today's line.",
			},
		},
		Temperature: 0.9,
		MaxTokens:   60,
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from AI")
	}

	line := strings.Trim(strings.TrimSpace(resp.Choices[0].Message.Content), `"`)
	if line == "" {
		return "", errors.New("empty response from AI")
	}
	return line, nil
}
