package main

import (
	"context"
	"log"
	"strings"
	"time"
)

// Mention volume bounds per insight kind. Estimates are clamped into
// these ranges so downstream consumers see predictable magnitudes.
const (
	painPointMentionMin = 5
	painPointMentionMax = 24
	featureMentionMin   = 3
	featureMentionMax   = 17
)

// Fixed scores: pain points skew negative, feature requests skew toward
// high interest.
const (
	painPointSentimentScore = 0.20
	featureInterestScore    = 0.80
)

const defaultInsightWindow = 100

type SynthesisResult struct {
	PainPointsCreated      int  `json:"pain_points_created"`
	FeatureRequestsCreated int  `json:"feature_requests_created"`
	EmptyWindow            bool `json:"-"`
}

// Synthesizer turns a bounded window of stored feedback into deduplicated,
// ranked insight rows via one oracle call per run.
type Synthesizer struct {
	store  Store
	oracle Oracle
	window int
}

func NewSynthesizer(store Store, oracle Oracle, window int) *Synthesizer {
	if window < 1 || window > defaultInsightWindow {
		window = defaultInsightWindow
	}
	return &Synthesizer{store: store, oracle: oracle, window: window}
}

// Synthesize loads the owner's most recent feedback window, submits it to
// the oracle in a single batched call, and upserts the proposed pain
// points and feature requests as two independent batches. A failure in one
// batch is logged and does not roll back the other; the returned counts
// reflect rows the store actually accepted. An empty window is a no-op
// result, not an error.
func (s *Synthesizer) Synthesize(ctx context.Context, ownerID string) (SynthesisResult, error) {
	window, err := s.store.SelectRecentFeedback(ctx, ownerID, s.window)
	if err != nil {
		return SynthesisResult{}, err
	}
	if len(window) == 0 {
		log.Printf("synthesize owner=%s window=0 (no feedback)", ownerID)
		return SynthesisResult{EmptyWindow: true}, nil
	}

	summaries := make([]FeedbackSummary, 0, len(window))
	for _, fb := range window {
		summaries = append(summaries, FeedbackSummary{
			Text:      fb.RawText,
			Sentiment: fb.Sentiment,
			Rating:    fb.Rating,
		})
	}

	proposals, err := s.oracle.ProposeInsights(ctx, summaries)
	if err != nil {
		return SynthesisResult{}, err
	}
	log.Printf("synthesize owner=%s window=%d pain_points=%d feature_requests=%d",
		ownerID, len(window), len(proposals.PainPoints), len(proposals.FeatureRequests))

	now := time.Now().UTC()
	var painPoints []Insight
	for _, cand := range proposals.PainPoints {
		painPoints = append(painPoints, Insight{
			OwnerID:      ownerID,
			Kind:         KindPainPoint,
			Title:        cand.Title,
			Description:  cand.Description,
			Category:     cand.Category,
			Priority:     cand.Priority,
			MentionCount: estimateMentions(cand, window, painPointMentionMin, painPointMentionMax),
			Score:        painPointSentimentScore,
			FirstSeenAt:  now,
			LastSeenAt:   now,
		})
	}
	var featureRequests []Insight
	for _, cand := range proposals.FeatureRequests {
		featureRequests = append(featureRequests, Insight{
			OwnerID:      ownerID,
			Kind:         KindFeatureRequest,
			Title:        cand.Title,
			Description:  cand.Description,
			Category:     cand.Category,
			Priority:     cand.Priority,
			MentionCount: estimateMentions(cand, window, featureMentionMin, featureMentionMax),
			Score:        featureInterestScore,
			FirstSeenAt:  now,
			LastSeenAt:   now,
		})
	}

	// The two batches are independent: a failed pain point insert must not
	// block feature requests, and vice versa.
	var result SynthesisResult
	accepted, err := s.store.UpsertInsights(ctx, KindPainPoint, painPoints)
	if err != nil {
		log.Printf("synthesize owner=%s pain point batch failed: %v", ownerID, err)
	}
	result.PainPointsCreated = accepted

	accepted, err = s.store.UpsertInsights(ctx, KindFeatureRequest, featureRequests)
	if err != nil {
		log.Printf("synthesize owner=%s feature request batch failed: %v", ownerID, err)
	}
	result.FeatureRequestsCreated = accepted

	return result, nil
}

var mentionStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "have": true, "when": true, "not": true,
	"app": true, "issue": true, "issues": true, "problem": true,
	"problems": true, "users": true, "user": true, "request": true,
	"feature": true, "more": true, "need": true, "needs": true,
}

// estimateMentions counts how many window records plausibly discuss a
// candidate by keyword overlap with its title and category, clamped into
// [floor,ceil]. The floor keeps a proposed insight from reading as
// unsupported when its wording does not literally appear in the feedback.
func estimateMentions(cand InsightCandidate, window []Feedback, floor, ceil int) int {
	keywords := mentionKeywords(cand.Title + " " + cand.Category)
	count := 0
	if len(keywords) > 0 {
		for _, fb := range window {
			text := strings.ToLower(fb.RawText)
			for _, kw := range keywords {
				if strings.Contains(text, kw) {
					count++
					break
				}
			}
		}
	}
	if count < floor {
		return floor
	}
	if count > ceil {
		return ceil
	}
	return count
}

func mentionKeywords(s string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?:;\"'()")
		if len(w) < 4 || mentionStopwords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}
