package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"mnemo/internal/model"
	"mnemo/pkg/errors"
	"mnemo/pkg/logger"
)

const extractionSystemPrompt = `You distill unstructured text into typed facts about the subject.
Return a JSON object of the form {"facts": [{"name": ..., "type": ..., "verb": ..., "confidence": ...}]}.
- "name" is the fact value (e.g. "Paris"), "type" its category (e.g. "Location", "Hobby", "Occupation").
- "verb" is the snake_case relation between the subject and the fact (e.g. "lives_in", "enjoys").
- "confidence" is a number between 0.0 and 1.0.
Only extract facts stated or strongly implied about the subject. Return {"facts": []} when there are none.`

// Extractor obtains typed fact candidates from an OpenAI-compatible chat
// endpoint. A failed extraction surfaces as an error that callers treat as
// "zero facts extracted", never as a hard stop.
type Extractor struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewExtractor creates an extraction adapter
func NewExtractor(baseURL, apiKey, modelID string) *Extractor {
	// Local OpenAI-compatible gateways accept any key
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimSuffix(baseURL, "/") + "/v1"

	return &Extractor{
		client: openai.NewClientWithConfig(config),
		model:  modelID,
		logger: logger.Named("extractor"),
	}
}

// Extract distills content into fact candidates, optionally primed with
// prior conversation turns
func (e *Extractor) Extract(ctx context.Context, content string, priorTurns []string) ([]model.FactCandidate, error) {
	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: extractionSystemPrompt,
		},
	}
	for _, turn := range priorTurns {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: turn,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: content,
	})

	req := openai.ChatCompletionRequest{
		Model:    e.model,
		Messages: messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.0,
	}

	// Retry with linear backoff
	var resp openai.ChatCompletionResponse
	var err error
	maxRetries := 3
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			e.logger.Warn("Retrying extraction request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil, errors.NewBaseError(errors.ErrorTypeContext, "extraction cancelled", ctx.Err())
			case <-time.After(backoff):
			}
		}

		resp, err = e.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}
		e.logger.Error("Extraction request failed",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.String("model", e.model),
		)
	}
	if err != nil {
		return nil, errors.NewBaseError(errors.ErrorTypeExtraction, fmt.Sprintf("extraction failed after %d attempts", maxRetries), err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.NewBaseError(errors.ErrorTypeExtraction, "no choices in extraction response", nil)
	}

	candidates, err := parseCandidates(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Facts extracted",
		zap.String("model", e.model),
		zap.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

// parseCandidates decodes the model output and drops malformed entries
// instead of failing the whole batch
func parseCandidates(raw string) ([]model.FactCandidate, error) {
	var payload struct {
		Facts []model.FactCandidate `json:"facts"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, errors.NewBaseError(errors.ErrorTypeExtraction, "failed to parse extraction output", err)
	}

	candidates := make([]model.FactCandidate, 0, len(payload.Facts))
	for _, c := range payload.Facts {
		if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Type) == "" || strings.TrimSpace(c.Verb) == "" {
			continue
		}
		c.Confidence = model.ClampConfidence(c.Confidence)
		candidates = append(candidates, c)
	}
	return candidates, nil
}
