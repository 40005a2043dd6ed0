package main

import (
	"strings"
	"testing"
)

func TestBuildDigestEmpty(t *testing.T) {
	msg, err := BuildDigest(&fakeStore{}, "owner-1")
	if err != nil {
		t.Fatalf("BuildDigest failed: %v", err)
	}
	if msg != "" {
		t.Fatalf("expected empty digest, got %q", msg)
	}
}

func TestBuildDigestFormatting(t *testing.T) {
	store := &fakeStore{
		upserted: map[string][]Insight{
			KindPainPoint: {
				{Title: "Slow startup", Priority: "critical", MentionCount: 18, TrendDirection: "up"},
				{Title: "Sync conflicts", Priority: "medium", MentionCount: 7, TrendDirection: "down"},
			},
			KindFeatureRequest: {
				{Title: "Dark mode", Priority: "high", MentionCount: 12},
			},
		},
	}

	msg, err := BuildDigest(store, "owner-1")
	if err != nil {
		t.Fatalf("BuildDigest failed: %v", err)
	}

	for _, want := range []string{
		"*Feedback digest for owner-1*",
		"*Top pain points*",
		"[critical] Slow startup (18 mentions) :chart_with_upwards_trend:",
		"[medium] Sync conflicts (7 mentions) :chart_with_downwards_trend:",
		"*Top feature requests*",
		"[high] Dark mode (12 mentions)",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("digest missing %q:\n%s", want, msg)
		}
	}
	if strings.Index(msg, "Top pain points") > strings.Index(msg, "Top feature requests") {
		t.Fatal("pain points should come before feature requests")
	}
}

func TestStartDigestSchedulerRejectsBadSchedule(t *testing.T) {
	cfg := Config{
		SlackBotToken:   "xoxb-test",
		DigestChannelID: "C123",
		DigestSchedule:  "not a cron spec",
		DigestOwners:    []string{"owner-1"},
	}
	// Should log and return without panicking or launching a goroutine.
	StartDigestScheduler(cfg, &fakeStore{}, nil)
}
