package main

import (
	"fmt"
	"strings"
	"time"
)

// Feedback sources. Matches the feedback_source enum in the store.
const (
	SourceGooglePlay = "google_play"
	SourceAppleStore = "apple_store"
	SourceCSVUpload  = "csv_upload"
	SourceTwitter    = "twitter"
	SourceOther      = "other"
)

var validSources = map[string]bool{
	SourceGooglePlay: true,
	SourceAppleStore: true,
	SourceCSVUpload:  true,
	SourceTwitter:    true,
	SourceOther:      true,
}

// Sentiment labels the oracle may return.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

var validSentiments = map[string]bool{
	SentimentPositive: true,
	SentimentNeutral:  true,
	SentimentNegative: true,
}

// Pain points may be critical; feature requests are capped at high
// (a request is never an emergency).
var painPointPriorities = map[string]bool{
	"low": true, "medium": true, "high": true, "critical": true,
}

var featureRequestPriorities = map[string]bool{
	"low": true, "medium": true, "high": true,
}

// Feedback is one normalized unit of user feedback. Rating 0 means the
// source provided none; stored values are always in [1,5]. Sentiment
// fields stay zero until the record has been classified.
type Feedback struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Source         string    `json:"source"`
	RawText        string    `json:"raw_text"`
	Rating         int       `json:"rating,omitempty"`
	AuthorName     string    `json:"author_name,omitempty"`
	Sentiment      string    `json:"sentiment,omitempty"`
	SentimentScore float64   `json:"sentiment_score,omitempty"`
	ProcessedAt    time.Time `json:"processed_at,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// FeedbackAnalysis is the classification outcome for a single feedback
// record, produced once per oracle call and immutable after write-back.
type FeedbackAnalysis struct {
	Sentiment        string    `json:"sentiment"`
	SentimentScore   float64   `json:"sentiment_score"`
	Category         string    `json:"category"`
	IsPainPoint      bool      `json:"is_pain_point"`
	IsFeatureRequest bool      `json:"is_feature_request"`
	Priority         string    `json:"priority"`
	Summary          string    `json:"summary"`
	ProcessedAt      time.Time `json:"processed_at"`
}

// Validate checks every field against its declared enum/range. Violations
// are never coerced; a bad analysis must not reach the store.
func (a FeedbackAnalysis) Validate() error {
	if !validSentiments[a.Sentiment] {
		return fmt.Errorf("invalid sentiment %q", a.Sentiment)
	}
	if a.SentimentScore < 0 || a.SentimentScore > 1 {
		return fmt.Errorf("sentiment_score %.2f outside [0,1]", a.SentimentScore)
	}
	if !painPointPriorities[a.Priority] {
		return fmt.Errorf("invalid priority %q", a.Priority)
	}
	if strings.TrimSpace(a.Category) == "" {
		return fmt.Errorf("empty category")
	}
	return nil
}

// Insight kinds.
const (
	KindPainPoint      = "pain_point"
	KindFeatureRequest = "feature_request"
)

// Insight is a synthesized, ranked aggregate derived from many feedback
// records: either a pain point or a feature request. MentionCount is the
// cumulative count across synthesis runs; RecentMentions is the estimate
// from the latest run and drives the trend fields.
type Insight struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Kind           string    `json:"kind"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	Priority       string    `json:"priority"`
	MentionCount   int       `json:"mention_count"`
	RecentMentions int       `json:"recent_mentions"`
	Score          float64   `json:"score"`
	TrendDirection string    `json:"trend_direction,omitempty"`
	TrendPercent   float64   `json:"trend_percentage,omitempty"`
	Status         string    `json:"status,omitempty"`
	FirstSeenAt    time.Time `json:"first_seen_at"`
	LastSeenAt     time.Time `json:"last_seen_at"`
}

// Validate checks the fields the synthesizer must never persist blank or
// out of range. Priority rules differ per kind.
func (i Insight) Validate() error {
	if strings.TrimSpace(i.Title) == "" {
		return fmt.Errorf("empty title")
	}
	if i.MentionCount < 1 {
		return fmt.Errorf("mention_count %d < 1", i.MentionCount)
	}
	if i.Score < 0 || i.Score > 1 {
		return fmt.Errorf("score %.2f outside [0,1]", i.Score)
	}
	switch i.Kind {
	case KindPainPoint:
		if !painPointPriorities[i.Priority] {
			return fmt.Errorf("invalid pain point priority %q", i.Priority)
		}
	case KindFeatureRequest:
		if !featureRequestPriorities[i.Priority] {
			return fmt.Errorf("invalid feature request priority %q", i.Priority)
		}
	default:
		return fmt.Errorf("unknown insight kind %q", i.Kind)
	}
	return nil
}

// clampRating forces a parsed rating into [1,5].
func clampRating(n int) int {
	if n < 1 {
		return 1
	}
	if n > 5 {
		return 5
	}
	return n
}

// normalizeTitle produces the dedup key component for insight upserts:
// lowercased, trimmed, inner whitespace collapsed.
func normalizeTitle(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
