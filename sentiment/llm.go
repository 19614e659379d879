package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aluiziolira/go-scrape-reviews/metrics"
	"github.com/aluiziolira/go-scrape-reviews/models"
)

const systemPrompt = "You are a sentiment analysis expert. Answer with a single JSON object and nothing else."

const userPromptTemplate = `Analyze the sentiment of the following reviews for %s:

%s

Please provide:
1. A list of positive aspects that people liked about the product
2. A list of negative aspects that people disliked about the product
3. A list of neutral aspects or mixed opinions
4. An overall sentiment score from 0 to 1 (0 being entirely negative, 1 being entirely positive)
5. A breakdown of sentiment by different aspects (e.g., camera: 0.8, battery: 0.3)

Format your response as a JSON object with the following structure:
{
  "positiveAspects": ["aspect1", "aspect2"],
  "negativeAspects": ["aspect3"],
  "neutralAspects": ["aspect4"],
  "overallSentiment": 0.5,
  "sentimentBreakdown": {"aspect1": 0.8, "aspect3": 0.2}
}`

var requiredKeys = []string{"positiveAspects", "negativeAspects", "neutralAspects", "overallSentiment", "sentimentBreakdown"}

// AnalysisParseError means the LLM answer was not the expected JSON object.
type AnalysisParseError struct {
	Raw string
	Err error
}

func (e AnalysisParseError) Error() string {
	return fmt.Sprintf("analysis_parse_error: %v", e.Err)
}

func (e AnalysisParseError) Unwrap() error {
	return e.Err
}

// AnalysisTransportError means the LLM call itself failed.
type AnalysisTransportError struct {
	Err error
}

func (e AnalysisTransportError) Error() string {
	return fmt.Sprintf("analysis_transport_error: %v", e.Err)
}

func (e AnalysisTransportError) Unwrap() error {
	return e.Err
}

// ChatCompleter is the part of *openai.Client the LLM strategy needs.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// LLM asks a chat-completion model for the analysis and falls back to another
// Analyzer whenever the call or its answer is unusable.
type LLM struct {
	client   ChatCompleter
	model    string
	fallback Analyzer
	timeout  time.Duration
	metrics  *metrics.Metrics
}

// NewLLM builds the LLM strategy. fallback must not be nil.
func NewLLM(client ChatCompleter, model string, fallback Analyzer) *LLM {
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}
	return &LLM{
		client:   client,
		model:    model,
		fallback: fallback,
		timeout:  60 * time.Second,
	}
}

func (l *LLM) Name() string { return "llm" }

// Analyze returns the model's analysis, or the fallback's when the model call
// fails or answers with something unusable. Only context cancellation is
// returned as an error.
func (l *LLM) Analyze(ctx context.Context, product string, reviews []string) (*models.SentimentResult, error) {
	result, err := l.complete(ctx, product, reviews)
	if err == nil {
		l.metrics.IncAnalysis(l.Name(), "ok")
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	outcome := errorOutcome(err)
	l.metrics.IncAnalysis(l.Name(), outcome)
	slog.Warn("llm analysis failed, using fallback",
		slog.String("product", product),
		slog.String("outcome", outcome),
		slog.String("fallback", l.fallback.Name()),
		slog.Any("error", err),
	)

	result, err = l.fallback.Analyze(ctx, product, reviews)
	if err != nil {
		l.metrics.IncAnalysis(l.fallback.Name(), "error")
		return nil, err
	}
	l.metrics.IncAnalysis(l.fallback.Name(), "fallback")
	return result, nil
}

func (l *LLM) complete(ctx context.Context, product string, reviews []string) (*models.SentimentResult, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: l.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(product, reviews)},
		},
		Temperature: 0.3,
		MaxTokens:   1000,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, AnalysisTransportError{Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, AnalysisParseError{Err: errors.New("response has no choices")}
	}

	slog.Debug("llm analysis completed",
		slog.String("product", product),
		slog.String("model", l.model),
		slog.String("finish_reason", string(resp.Choices[0].FinishReason)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return ParseAnalysis(product, resp.Choices[0].Message.Content)
}

func buildPrompt(product string, reviews []string) string {
	var b strings.Builder
	for i, review := range reviews {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(strings.Join(strings.Fields(review), " "))
	}
	return fmt.Sprintf(userPromptTemplate, product, b.String())
}

type analysisPayload struct {
	PositiveAspects    []string            `json:"positiveAspects"`
	NegativeAspects    []string            `json:"negativeAspects"`
	NeutralAspects     []string            `json:"neutralAspects"`
	OverallSentiment   *float64            `json:"overallSentiment"`
	SentimentBreakdown map[string]*float64 `json:"sentimentBreakdown"`
}

// ParseAnalysis decodes an LLM answer into a SentimentResult. Markdown code
// fences and surrounding prose are stripped first. Required keys must be
// non-null and every score must lie in [0, 1]. Aspects with a breakdown
// score are banded by that score; listed aspects without one keep the first
// list they appear in.
func ParseAnalysis(product, content string) (*models.SentimentResult, error) {
	cleaned := extractJSON(content)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, AnalysisParseError{Raw: content, Err: fmt.Errorf("invalid json: %w", err)}
	}
	for _, key := range requiredKeys {
		value, ok := raw[key]
		if !ok {
			return nil, AnalysisParseError{Raw: content, Err: fmt.Errorf("missing key %q", key)}
		}
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			return nil, AnalysisParseError{Raw: content, Err: fmt.Errorf("key %q is null", key)}
		}
	}

	var payload analysisPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, AnalysisParseError{Raw: content, Err: fmt.Errorf("unexpected field types: %w", err)}
	}
	if err := checkScore("overallSentiment", payload.OverallSentiment); err != nil {
		return nil, AnalysisParseError{Raw: content, Err: err}
	}
	breakdown := make(map[string]float64, len(payload.SentimentBreakdown))
	for aspect, score := range payload.SentimentBreakdown {
		if err := checkScore("sentimentBreakdown."+aspect, score); err != nil {
			return nil, AnalysisParseError{Raw: content, Err: err}
		}
		breakdown[aspect] = *score
	}

	result := newResult(product, "llm", *payload.OverallSentiment)

	listed := make(map[string]bool)
	var order []string
	for _, list := range [][]string{payload.PositiveAspects, payload.NegativeAspects, payload.NeutralAspects} {
		for _, aspect := range list {
			aspect = strings.TrimSpace(aspect)
			if aspect == "" || listed[aspect] {
				continue
			}
			listed[aspect] = true
			order = append(order, aspect)
		}
	}
	var extra []string
	for aspect := range breakdown {
		if !listed[aspect] {
			extra = append(extra, aspect)
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	for _, aspect := range order {
		if score, ok := breakdown[aspect]; ok {
			addAspect(result, aspect, score)
			continue
		}
		switch {
		case contains(payload.PositiveAspects, aspect):
			result.PositiveAspects = append(result.PositiveAspects, aspect)
		case contains(payload.NegativeAspects, aspect):
			result.NegativeAspects = append(result.NegativeAspects, aspect)
		default:
			result.NeutralAspects = append(result.NeutralAspects, aspect)
		}
	}
	return result, nil
}

// checkScore requires a present score within [0, 1].
func checkScore(name string, score *float64) error {
	switch {
	case score == nil:
		return fmt.Errorf("%s is null", name)
	case math.IsNaN(*score) || *score < 0 || *score > 1:
		return fmt.Errorf("%s = %v is outside [0, 1]", name, *score)
	}
	return nil
}

// extractJSON strips markdown fences and any prose around the outermost object.
func extractJSON(content string) string {
	cleaned := strings.TrimSpace(content)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
		cleaned = strings.TrimSpace(cleaned)
	}
	if strings.HasPrefix(cleaned, "{") && strings.HasSuffix(cleaned, "}") {
		return cleaned
	}
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		return cleaned[start : end+1]
	}
	return cleaned
}

func errorOutcome(err error) string {
	var parseErr AnalysisParseError
	if errors.As(err, &parseErr) {
		return "parse_error"
	}
	return "transport_error"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.TrimSpace(v) == s {
			return true
		}
	}
	return false
}
