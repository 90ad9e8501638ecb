package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/insightdelivered/bank-statement-agent/internal/config"
)

// DefaultGroqModel is used when no model is configured.
const DefaultGroqModel = "llama-3.3-70b-versatile"

// Groq calls the Groq OpenAI-compatible chat completions endpoint.
type Groq struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	TopP        float64
	Timeout     time.Duration
}

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqRequest struct {
	Model       string        `json:"model"`
	Messages    []groqMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	TopP        float64       `json:"top_p"`
}

type groqResponse struct {
	Choices []struct {
		Message groqMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// NewGroq validates the key and returns a Groq backend.
func NewGroq(cfg config.GeneratorConfig) (*Groq, error) {
	if err := checkAPIKey("groq", cfg.GroqAPIKey); err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGroqModel
	}
	return &Groq{
		BaseURL:     strings.TrimRight(cfg.GroqBaseURL, "/"),
		APIKey:      cfg.GroqAPIKey,
		Model:       model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		TopP:        1,
		Timeout:     cfg.Timeout,
	}, nil
}

// Complete sends one chat completion request.
func (g *Groq) Complete(ctx context.Context, system, user string) (string, error) {
	timeout := g.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); timeout <= 0 || left < timeout {
			timeout = left
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	req := groqRequest{
		Model: g.Model,
		Messages: []groqMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: g.Temperature,
		MaxTokens:   g.MaxTokens,
		TopP:        g.TopP,
	}

	agent := fiber.Post(g.BaseURL + "/chat/completions")
	agent.Set(fiber.HeaderAuthorization, "Bearer "+g.APIKey)
	agent.JSON(req)
	if timeout > 0 {
		agent.Timeout(timeout)
	}

	// The fiber agent takes no context, so the caller stops waiting on
	// cancel and the request finishes (or times out) on its own.
	type reply struct {
		code int
		body []byte
		errs []error
	}
	done := make(chan reply, 1)
	go func() {
		code, body, errs := agent.Bytes()
		done <- reply{code, body, errs}
	}()

	var r reply
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r = <-done:
	}
	code, body, errs := r.code, r.body, r.errs
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(errs) > 0 {
		return "", transient("groq request", errors.Join(errs...))
	}

	var resp groqResponse
	if err := json.Unmarshal(body, &resp); err != nil && code == fiber.StatusOK {
		return "", transient("groq response", fmt.Errorf("decode: %w", err))
	}

	if code != fiber.StatusOK {
		msg := fmt.Sprintf("status %d", code)
		if resp.Error != nil && resp.Error.Message != "" {
			msg += ": " + resp.Error.Message
		}
		return "", classifyStatus("groq", code, errors.New(msg))
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", transient("groq response", errors.New("empty completion"))
	}
	return resp.Choices[0].Message.Content, nil
}

// classifyStatus maps HTTP status codes onto the retry policy: bad keys and
// unknown models are permanent, rate limits and server errors are not.
func classifyStatus(provider string, code int, err error) error {
	switch {
	case code == fiber.StatusUnauthorized || code == fiber.StatusForbidden:
		return permanent(provider+" rejected the API key", err)
	case code == fiber.StatusNotFound:
		return permanent(provider+" model not found", err)
	case code == fiber.StatusTooManyRequests:
		return transient(provider+" rate limit exceeded", err)
	default:
		return transient(provider+" request failed", err)
	}
}
