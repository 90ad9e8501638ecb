package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/insightdelivered/bank-statement-agent/internal/config"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini calls Google's Gemini API through the GenAI SDK.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
}

// NewGemini validates the key and creates a GenAI client.
func NewGemini(ctx context.Context, cfg config.GeneratorConfig) (*Gemini, error) {
	if err := checkAPIKey("gemini", cfg.GeminiAPIKey); err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{
		client:      client,
		model:       model,
		temperature: float32(cfg.Temperature),
		maxTokens:   int32(cfg.MaxTokens),
	}, nil
}

// Complete sends one GenerateContent request.
func (g *Gemini) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(user), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
		MaxOutputTokens:   g.maxTokens,
	})
	if err != nil {
		return "", classifyGenAI(err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", transient("gemini response", errors.New("empty completion"))
	}
	return text, nil
}

func classifyGenAI(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus("gemini", apiErr.Code, err)
	}
	return transient("gemini request", err)
}
