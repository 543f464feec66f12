package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Analyzer answers a question, optionally about a PNG image. Implementations
// must treat the call as opaque and blocking; cancellation comes from ctx.
type Analyzer interface {
	Analyze(ctx context.Context, question string, imagePNG []byte) (string, error)
}

// ErrNotConfigured is returned when no API key is available. Callers surface
// it as answer text rather than dropping the query.
var ErrNotConfigured = errors.New("API key not configured")

const screenshotPromptPrefix = "Please analyze this screenshot and answer: "

type Config struct {
	Endpoint string
	Model    string
	APIKey   string
}

type OpenAIAnalyzer struct {
	cfg    Config
	client openai.Client
}

func NewOpenAIAnalyzer(cfg Config) *OpenAIAnalyzer {
	opts := []option.RequestOption{}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	if base := strings.TrimSpace(cfg.Endpoint); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	return &OpenAIAnalyzer{cfg: cfg, client: openai.NewClient(opts...)}
}

func (a *OpenAIAnalyzer) Analyze(ctx context.Context, question string, imagePNG []byte) (string, error) {
	if strings.TrimSpace(a.cfg.APIKey) == "" {
		return "", ErrNotConfigured
	}

	var message openai.ChatCompletionMessageParamUnion
	if len(imagePNG) > 0 {
		dataURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(imagePNG)
		message = openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(screenshotPromptPrefix + question),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURI}),
		})
	} else {
		message = openai.UserMessage(question)
	}

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    a.cfg.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{message},
	})
	if err != nil {
		return "", fmt.Errorf("inference request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("inference returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// FormatAnswer converts an inference outcome into the answer text shown to
// the operator. Failures become readable text instead of a dropped query.
func FormatAnswer(answer string, err error) string {
	switch {
	case err == nil:
		return answer
	case errors.Is(err, ErrNotConfigured):
		return "Error: API key not configured"
	default:
		return fmt.Sprintf("Analysis failed: %v", err)
	}
}
