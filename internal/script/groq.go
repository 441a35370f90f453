package script

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"shortform-studio/internal/retry"
)

// GroqGenerator talks to Groq's OpenAI-compatible chat completions endpoint
type GroqGenerator struct {
	url         string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
}

func NewGroqGenerator(url, apiKey, model string, temperature float64) (*GroqGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GROQ_API_KEY not set")
	}
	return &GroqGenerator{
		url:         url,
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

type groqRequest struct {
	Model       string        `json:"model"`
	Messages    []groqMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (g *GroqGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	reqBody := groqRequest{
		Model:       g.model,
		Temperature: g.temperature,
		MaxTokens:   4096,
	}
	if system != "" {
		reqBody.Messages = append(reqBody.Messages, groqMessage{Role: "system", Content: system})
	}
	reqBody.Messages = append(reqBody.Messages, groqMessage{Role: "user", Content: prompt})

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("groq request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var groqResp groqResponse
	if err := json.Unmarshal(respBytes, &groqResp); err != nil {
		return "", fmt.Errorf("parse groq response (HTTP %d): %w", resp.StatusCode, err)
	}
	if groqResp.Error != nil {
		err := fmt.Errorf("groq error: %s", groqResp.Error.Message)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return "", retry.Permanent(err)
		}
		return "", err
	}
	if len(groqResp.Choices) == 0 {
		return "", fmt.Errorf("groq returned no choices")
	}
	return groqResp.Choices[0].Message.Content, nil
}

// DescribeImage falls back to a text-only prompt; the chat endpoint used here takes no images.
func (g *GroqGenerator) DescribeImage(ctx context.Context, mimeType string, data []byte, prompt string) (string, error) {
	return g.Generate(ctx, "", prompt)
}
