package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ahfmawlrl/sns-solution/internal/guard"
	"github.com/ahfmawlrl/sns-solution/pkg/models"
)

const aiService = "llm"

// AIClient talks to an OpenAI-compatible completion endpoint for sentiment
// scoring, copy generation, reply drafting and embeddings.
type AIClient struct {
	baseURL    string
	apiKey     string
	chatModel  string
	embedModel string
	guard      *guard.Guard
	httpClient *http.Client
}

// AIConfig holds AI client configuration.
type AIConfig struct {
	BaseURL    string
	APIKey     string
	ChatModel  string
	EmbedModel string
}

func NewAIClient(cfg AIConfig, g *guard.Guard) *AIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-4o-mini"
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "text-embedding-3-small"
	}
	return &AIClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbedModel,
		guard:      g,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Sentiment classifies a comment as positive, neutral, negative or crisis.
// Unrecognized model output maps to neutral rather than failing the task.
func (c *AIClient) Sentiment(ctx context.Context, text string) (models.CommentSentiment, error) {
	out, err := c.chat(ctx,
		"You classify social media comments. Reply with exactly one word: positive, neutral, negative, or crisis. Crisis means reputational risk that needs immediate human attention.",
		text, 0)
	if err != nil {
		return "", err
	}

	switch models.CommentSentiment(strings.ToLower(strings.TrimSpace(out))) {
	case models.SentimentPositive:
		return models.SentimentPositive, nil
	case models.SentimentNegative:
		return models.SentimentNegative, nil
	case models.SentimentCrisis:
		return models.SentimentCrisis, nil
	default:
		return models.SentimentNeutral, nil
	}
}

// GenerateCopy drafts post copy from a brief.
func (c *AIClient) GenerateCopy(ctx context.Context, brief string) (string, error) {
	return c.chat(ctx,
		"You write short social media post copy for a marketing agency. Return only the post text.",
		brief, 0.7)
}

// DraftReply drafts a brand-voice reply to a user comment.
func (c *AIClient) DraftReply(ctx context.Context, comment string) (string, error) {
	return c.chat(ctx,
		"You draft polite, on-brand replies to social media comments for a marketing agency. Return only the reply text.",
		comment, 0.5)
}

// Embedding returns the embedding vector for the given text.
func (c *AIClient) Embedding(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]any{
		"model": c.embedModel,
		"input": text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	var vector []float32
	err = c.guard.Do(ctx, aiService, func(callCtx context.Context) error {
		resp, err := c.post(callCtx, "/embeddings", body)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return c.statusError(resp)
		}

		var out struct {
			Data []struct {
				Embedding []float32 `json:"embedding"`
			} `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode embedding response: %w", err)
		}
		if len(out.Data) == 0 {
			return fmt.Errorf("embedding response has no data")
		}
		vector = out.Data[0].Embedding
		return nil
	})
	return vector, err
}

func (c *AIClient) chat(ctx context.Context, system, user string, temperature float64) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	var text string
	err = c.guard.Do(ctx, aiService, func(callCtx context.Context) error {
		resp, err := c.post(callCtx, "/chat/completions", body)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return c.statusError(resp)
		}

		var out chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode chat response: %w", err)
		}
		if len(out.Choices) == 0 {
			return fmt.Errorf("chat response has no choices")
		}
		text = strings.TrimSpace(out.Choices[0].Message.Content)
		return nil
	})
	return text, err
}

func (c *AIClient) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build ai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call ai service: %w", err)
	}
	return resp, nil
}

func (c *AIClient) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &StatusError{
		Service: aiService,
		Code:    resp.StatusCode,
		Body:    strings.TrimSpace(string(body)),
	}
}
