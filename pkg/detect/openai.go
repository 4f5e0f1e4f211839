package detect

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const extractPrompt = `Extract the start location and end location from this voice command.
Return ONLY two locations separated by a pipe (|). Format: START_LOCATION|END_LOCATION
If only one location is mentioned, use it as the end location and return "Current Location|END_LOCATION"
If no locations are mentioned, return "NOT_FOUND|NOT_FOUND"

Voice command: "%s"

Locations:`

// currentLocationMarker is what the model returns for an unspecified start.
// It is mapped to an empty start so the caller can substitute a real
// position.
const currentLocationMarker = "current location"

// OpenAIExtractor extracts routes with a chat completion.
type OpenAIExtractor struct {
	client openai.Client
	model  openai.ChatModel
}

// NewOpenAIExtractor creates an extractor using the given API key and model.
// An empty key falls back to the OPENAI_API_KEY environment variable, which
// the client reads by default.
func NewOpenAIExtractor(apiKey, model string) *OpenAIExtractor {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &OpenAIExtractor{
		client: openai.NewClient(opts...),
		model:  openai.ChatModel(model),
	}
}

// ExtractRoute implements Extractor.
func (e *OpenAIExtractor) ExtractRoute(ctx context.Context, text string) (string, string, error) {
	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: e.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(fmt.Sprintf(extractPrompt, text)),
		},
		Temperature: openai.Float(0.3),
		MaxTokens:   openai.Int(100),
	})
	if err != nil {
		return "", "", fmt.Errorf("route extraction failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", "", nil
	}

	return parseRoute(resp.Choices[0].Message.Content)
}

// parseRoute splits the model's START|END answer.
func parseRoute(answer string) (string, string, error) {
	answer = strings.TrimSpace(answer)
	if strings.Contains(strings.ToUpper(answer), "NOT_FOUND") {
		return "", "", nil
	}

	parts := strings.Split(answer, "|")
	if len(parts) != 2 {
		return "", "", nil
	}

	start := strings.TrimSpace(parts[0])
	end := strings.TrimSpace(parts[1])
	if strings.ToLower(start) == currentLocationMarker {
		start = ""
	}
	return start, end, nil
}
