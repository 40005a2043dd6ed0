package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

var (
	// ErrOracleUnavailable covers transport failures and timeouts talking
	// to the oracle. Retryable by the caller with backoff.
	ErrOracleUnavailable = errors.New("classification oracle unavailable")
	// ErrOracleRejected means the oracle returned a non-success status.
	// Not retryable without changing the request.
	ErrOracleRejected = errors.New("classification oracle rejected the request")
	// ErrMalformedOracleResponse means the response parsed but violates
	// the declared schema. Indicates contract drift; never retried here.
	ErrMalformedOracleResponse = errors.New("malformed oracle response")
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"
const defaultOpenAIModel = "gpt-4o-mini"
const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// Oracle is the classification contract the pipeline consumes. Classify
// analyzes one feedback text; ProposeInsights digests a whole window in a
// single call.
type Oracle interface {
	Classify(ctx context.Context, text string) (FeedbackAnalysis, error)
	ProposeInsights(ctx context.Context, window []FeedbackSummary) (InsightProposals, error)
}

// FeedbackSummary is the per-record projection submitted to the oracle
// during synthesis.
type FeedbackSummary struct {
	Text      string `json:"text"`
	Sentiment string `json:"sentiment,omitempty"`
	Rating    int    `json:"rating,omitempty"`
}

// InsightCandidate is one oracle-proposed insight before scoring and
// persistence.
type InsightCandidate struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Category    string `json:"category"`
}

type InsightProposals struct {
	PainPoints      []InsightCandidate `json:"pain_points"`
	FeatureRequests []InsightCandidate `json:"feature_requests"`
}

// OracleConfig holds endpoint and credentials for the oracle client.
// Constructed once at process start and passed by reference; core logic
// never reads ambient state.
type OracleConfig struct {
	Provider        string // "anthropic" or "openai"
	Model           string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
}

type OracleClient struct {
	cfg       OracleConfig
	anthropic anthropic.Client
	http      *http.Client
}

func NewOracleClient(cfg OracleConfig) *OracleClient {
	if cfg.Model == "" {
		if cfg.Provider == "openai" {
			cfg.Model = defaultOpenAIModel
		} else {
			cfg.Model = defaultAnthropicModel
		}
	}
	if cfg.OpenAIBaseURL == "" {
		cfg.OpenAIBaseURL = defaultOpenAIBaseURL
	}
	return &OracleClient{
		cfg:       cfg,
		anthropic: anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey)),
		http:      oracleHTTPClient,
	}
}

const classifySystemPrompt = `You are an AI feedback analyst. Analyze user feedback and extract:
1. Sentiment (positive, neutral, negative)
2. Sentiment score (0.00 to 1.00, where 0 is most negative, 1 is most positive)
3. Main theme/category
4. Whether it's a pain point or feature request
5. Priority level (low, medium, high, critical)
6. A brief summary

Return ONLY valid JSON (no markdown) in this exact format:
{
  "sentiment": "positive|neutral|negative",
  "sentiment_score": 0.75,
  "category": "category name",
  "is_pain_point": true,
  "is_feature_request": false,
  "priority": "low|medium|high|critical",
  "summary": "brief summary"
}`

// analysisPayload is the wire shape of a classification response. Pointer
// fields detect missing keys: a required field the oracle omitted is a
// schema violation, not a zero value.
type analysisPayload struct {
	Sentiment        *string  `json:"sentiment"`
	SentimentScore   *float64 `json:"sentiment_score"`
	Category         *string  `json:"category"`
	IsPainPoint      *bool    `json:"is_pain_point"`
	IsFeatureRequest *bool    `json:"is_feature_request"`
	Priority         *string  `json:"priority"`
	Summary          *string  `json:"summary"`
}

// Classify sends one feedback text to the oracle and validates the
// structured result. No retry is performed here; retry policy belongs to
// the caller.
func (c *OracleClient) Classify(ctx context.Context, text string) (FeedbackAnalysis, error) {
	log.Printf("oracle classify provider=%s model=%s chars=%d", c.cfg.Provider, c.cfg.Model, len(text))
	responseText, err := c.complete(ctx, classifySystemPrompt, text)
	if err != nil {
		return FeedbackAnalysis{}, err
	}

	var payload analysisPayload
	if err := json.Unmarshal([]byte(stripCodeFence(responseText)), &payload); err != nil {
		return FeedbackAnalysis{}, fmt.Errorf("%w: %v (response: %s)", ErrMalformedOracleResponse, err, truncateForLog(responseText))
	}
	if payload.Sentiment == nil || payload.SentimentScore == nil || payload.Category == nil ||
		payload.IsPainPoint == nil || payload.IsFeatureRequest == nil ||
		payload.Priority == nil || payload.Summary == nil {
		return FeedbackAnalysis{}, fmt.Errorf("%w: missing required field (response: %s)", ErrMalformedOracleResponse, truncateForLog(responseText))
	}

	analysis := FeedbackAnalysis{
		Sentiment:        strings.TrimSpace(*payload.Sentiment),
		SentimentScore:   *payload.SentimentScore,
		Category:         strings.TrimSpace(*payload.Category),
		IsPainPoint:      *payload.IsPainPoint,
		IsFeatureRequest: *payload.IsFeatureRequest,
		Priority:         strings.TrimSpace(*payload.Priority),
		Summary:          strings.TrimSpace(*payload.Summary),
		ProcessedAt:      time.Now().UTC(),
	}
	if err := analysis.Validate(); err != nil {
		return FeedbackAnalysis{}, fmt.Errorf("%w: %v", ErrMalformedOracleResponse, err)
	}
	return analysis, nil
}

const proposeSystemPrompt = `You are an AI product analyst. Analyze the following feedback and identify:
1. Top 3-5 pain points (issues/problems users are experiencing)
2. Top 3-5 feature requests (things users want added)

For each pain point, provide:
- title: Clear, concise title
- description: Brief explanation
- priority: low, medium, high, or critical
- category: General category

For each feature request, provide:
- title: Clear, concise title
- description: Brief explanation
- priority: low, medium, or high
- category: General category

Return ONLY valid JSON (no markdown) in this exact format:
{"pain_points": [{"title": "...", "description": "...", "priority": "high", "category": "..."}], "feature_requests": [{"title": "...", "description": "...", "priority": "medium", "category": "..."}]}`

// ProposeInsights submits an entire feedback window in one oracle call and
// validates the proposed pain points and feature requests. Feature request
// priorities are capped below critical; a critical request is a schema
// violation.
func (c *OracleClient) ProposeInsights(ctx context.Context, window []FeedbackSummary) (InsightProposals, error) {
	summary, err := json.MarshalIndent(window, "", "  ")
	if err != nil {
		return InsightProposals{}, fmt.Errorf("marshaling feedback window: %w", err)
	}

	log.Printf("oracle propose-insights provider=%s model=%s window=%d", c.cfg.Provider, c.cfg.Model, len(window))
	responseText, err := c.complete(ctx, proposeSystemPrompt, "Analyze this feedback:\n\n"+string(summary))
	if err != nil {
		return InsightProposals{}, err
	}

	var proposals InsightProposals
	if err := json.Unmarshal([]byte(stripCodeFence(responseText)), &proposals); err != nil {
		return InsightProposals{}, fmt.Errorf("%w: %v (response: %s)", ErrMalformedOracleResponse, err, truncateForLog(responseText))
	}
	if proposals.PainPoints == nil || proposals.FeatureRequests == nil {
		return InsightProposals{}, fmt.Errorf("%w: missing pain_points or feature_requests array", ErrMalformedOracleResponse)
	}
	for _, pp := range proposals.PainPoints {
		if strings.TrimSpace(pp.Title) == "" {
			return InsightProposals{}, fmt.Errorf("%w: pain point with empty title", ErrMalformedOracleResponse)
		}
		if !painPointPriorities[pp.Priority] {
			return InsightProposals{}, fmt.Errorf("%w: invalid pain point priority %q", ErrMalformedOracleResponse, pp.Priority)
		}
	}
	for _, fr := range proposals.FeatureRequests {
		if strings.TrimSpace(fr.Title) == "" {
			return InsightProposals{}, fmt.Errorf("%w: feature request with empty title", ErrMalformedOracleResponse)
		}
		if !featureRequestPriorities[fr.Priority] {
			return InsightProposals{}, fmt.Errorf("%w: invalid feature request priority %q", ErrMalformedOracleResponse, fr.Priority)
		}
	}
	return proposals, nil
}

func (c *OracleClient) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	switch c.cfg.Provider {
	case "openai":
		return c.callOpenAI(ctx, systemPrompt, userPrompt)
	default:
		return c.callAnthropic(ctx, systemPrompt, userPrompt)
	}
}

// --- Anthropic ---

func (c *OracleClient) callAnthropic(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	message, err := c.anthropic.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		log.Printf("oracle anthropic error: %v", err)
		var apierr *anthropic.Error
		if errors.As(err, &apierr) {
			return "", fmt.Errorf("%w: anthropic status %d", ErrOracleRejected, apierr.StatusCode)
		}
		return "", fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			log.Printf("oracle anthropic response size=%d tokens_in=%d tokens_out=%d", len(block.Text), message.Usage.InputTokens, message.Usage.OutputTokens)
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("%w: no text content in anthropic response", ErrMalformedOracleResponse)
}

// --- OpenAI-compatible ---

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *OracleClient) callOpenAI(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := openAIRequest{
		Model: c.cfg.Model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.OpenAIBaseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.OpenAIAPIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("oracle openai error: %v", err)
		return "", fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", ErrOracleUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("oracle openai status=%d body=%s", resp.StatusCode, truncateForLog(string(respBody)))
		return "", fmt.Errorf("%w: status %d", ErrOracleRejected, resp.StatusCode)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedOracleResponse, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrOracleRejected, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrMalformedOracleResponse)
	}

	content := parsed.Choices[0].Message.Content
	log.Printf("oracle openai response size=%d", len(content))
	return content, nil
}

// stripCodeFence removes a markdown code fence the model may wrap around
// its JSON despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncateForLog(s string) string {
	if len(s) > 512 {
		return s[:512] + fmt.Sprintf("... [truncated, total_length=%d]", len(s))
	}
	return s
}
