package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newFakeOracleServer returns an OracleClient wired to an OpenAI-style
// endpoint that always replies with the given message content.
func newFakeOracleServer(t *testing.T, status int, content string) *OracleClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error": {"message": "nope"}}`))
			return
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	return NewOracleClient(OracleConfig{
		Provider:      "openai",
		Model:         "test-model",
		OpenAIAPIKey:  "test-key",
		OpenAIBaseURL: srv.URL,
	})
}

func analysisJSON(t *testing.T, overrides map[string]any) string {
	t.Helper()
	payload := map[string]any{
		"sentiment":          "negative",
		"sentiment_score":    0.1,
		"category":           "performance",
		"is_pain_point":      true,
		"is_feature_request": false,
		"priority":           "high",
		"summary":            "app is slow",
	}
	for k, v := range overrides {
		if v == nil {
			delete(payload, k)
			continue
		}
		payload[k] = v
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(raw)
}

func TestClassifyValidResponse(t *testing.T) {
	oracle := newFakeOracleServer(t, http.StatusOK, analysisJSON(t, nil))

	analysis, err := oracle.Classify(context.Background(), "the app is slow")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if analysis.Sentiment != SentimentNegative {
		t.Fatalf("expected negative sentiment, got %q", analysis.Sentiment)
	}
	if !analysis.IsPainPoint {
		t.Fatal("expected is_pain_point true")
	}
	if analysis.ProcessedAt.IsZero() {
		t.Fatal("expected processed_at to be stamped")
	}
}

func TestClassifyAcceptsCodeFencedJSON(t *testing.T) {
	oracle := newFakeOracleServer(t, http.StatusOK, "```json\n"+analysisJSON(t, nil)+"\n```")

	if _, err := oracle.Classify(context.Background(), "the app is slow"); err != nil {
		t.Fatalf("expected fenced JSON to parse, got %v", err)
	}
}

func TestClassifyScoreOutOfRange(t *testing.T) {
	oracle := newFakeOracleServer(t, http.StatusOK, analysisJSON(t, map[string]any{"sentiment_score": 1.4}))

	_, err := oracle.Classify(context.Background(), "text")
	if !errors.Is(err, ErrMalformedOracleResponse) {
		t.Fatalf("expected ErrMalformedOracleResponse for score 1.4, got %v", err)
	}
}

func TestClassifyScoreZeroAccepted(t *testing.T) {
	oracle := newFakeOracleServer(t, http.StatusOK, analysisJSON(t, map[string]any{"sentiment_score": 0.0}))

	analysis, err := oracle.Classify(context.Background(), "text")
	if err != nil {
		t.Fatalf("score 0.0 must be accepted: %v", err)
	}
	if analysis.SentimentScore != 0 {
		t.Fatalf("expected score 0, got %f", analysis.SentimentScore)
	}
}

func TestClassifyMissingRequiredField(t *testing.T) {
	oracle := newFakeOracleServer(t, http.StatusOK, analysisJSON(t, map[string]any{"priority": nil}))

	_, err := oracle.Classify(context.Background(), "text")
	if !errors.Is(err, ErrMalformedOracleResponse) {
		t.Fatalf("expected ErrMalformedOracleResponse for missing priority, got %v", err)
	}
}

func TestClassifyInvalidEnum(t *testing.T) {
	oracle := newFakeOracleServer(t, http.StatusOK, analysisJSON(t, map[string]any{"sentiment": "furious"}))

	_, err := oracle.Classify(context.Background(), "text")
	if !errors.Is(err, ErrMalformedOracleResponse) {
		t.Fatalf("expected ErrMalformedOracleResponse for bad enum, got %v", err)
	}
}

func TestClassifyNonJSONResponse(t *testing.T) {
	oracle := newFakeOracleServer(t, http.StatusOK, "Sure! Here is my analysis of the feedback...")

	_, err := oracle.Classify(context.Background(), "text")
	if !errors.Is(err, ErrMalformedOracleResponse) {
		t.Fatalf("expected ErrMalformedOracleResponse for prose, got %v", err)
	}
}

func TestClassifyOracleRejected(t *testing.T) {
	oracle := newFakeOracleServer(t, http.StatusTooManyRequests, "")

	_, err := oracle.Classify(context.Background(), "text")
	if !errors.Is(err, ErrOracleRejected) {
		t.Fatalf("expected ErrOracleRejected on 429, got %v", err)
	}
}

func TestClassifyOracleUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	oracle := NewOracleClient(OracleConfig{
		Provider:      "openai",
		OpenAIAPIKey:  "test-key",
		OpenAIBaseURL: srv.URL,
	})
	_, err := oracle.Classify(context.Background(), "text")
	if !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}
}

func proposalsJSON(t *testing.T, painPriority, featurePriority string) string {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"pain_points": []map[string]any{
			{"title": "Slow startup", "description": "takes ages to load", "priority": painPriority, "category": "performance"},
		},
		"feature_requests": []map[string]any{
			{"title": "Dark mode", "description": "many users ask for it", "priority": featurePriority, "category": "ui"},
		},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(raw)
}

func TestProposeInsightsValid(t *testing.T) {
	oracle := newFakeOracleServer(t, http.StatusOK, proposalsJSON(t, "critical", "high"))

	proposals, err := oracle.ProposeInsights(context.Background(), []FeedbackSummary{{Text: "slow"}})
	if err != nil {
		t.Fatalf("ProposeInsights failed: %v", err)
	}
	if len(proposals.PainPoints) != 1 || len(proposals.FeatureRequests) != 1 {
		t.Fatalf("unexpected proposal counts: %d/%d", len(proposals.PainPoints), len(proposals.FeatureRequests))
	}
}

func TestProposeInsightsCriticalFeatureRequestRejected(t *testing.T) {
	// Feature requests are capped below critical by contract.
	oracle := newFakeOracleServer(t, http.StatusOK, proposalsJSON(t, "high", "critical"))

	_, err := oracle.ProposeInsights(context.Background(), []FeedbackSummary{{Text: "slow"}})
	if !errors.Is(err, ErrMalformedOracleResponse) {
		t.Fatalf("expected ErrMalformedOracleResponse, got %v", err)
	}
}

func TestProposeInsightsMissingArrays(t *testing.T) {
	oracle := newFakeOracleServer(t, http.StatusOK, `{"pain_points": []}`)

	_, err := oracle.ProposeInsights(context.Background(), []FeedbackSummary{{Text: "slow"}})
	if !errors.Is(err, ErrMalformedOracleResponse) {
		t.Fatalf("expected ErrMalformedOracleResponse for missing feature_requests, got %v", err)
	}
}
