package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/slack-go/slack"
)

const digestInsightLimit = 5
const digestTimeout = 30 * time.Second

// StartDigestScheduler starts a cron-based scheduler that periodically
// posts each configured owner's top insights to the digest channel.
// The schedule is a standard 5-field cron expression (minute hour day-of-month month day-of-week).
// Examples: "0 9 * * *" (daily 9am), "0 9 * * 1" (Mondays 9am).
// Read-only: the digest never invokes the oracle.
func StartDigestScheduler(cfg Config, store Store, api *slack.Client) {
	if !cfg.DigestConfigured() {
		log.Println("Digest disabled (digest_schedule, slack_bot_token, digest_channel_id and digest_owners must all be set)")
		return
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(cfg.DigestSchedule)
	if err != nil {
		log.Printf("Invalid digest_schedule '%s': %v, digest disabled", cfg.DigestSchedule, err)
		return
	}

	log.Printf("Digest scheduled (cron: %s) for %d owners", cfg.DigestSchedule, len(cfg.DigestOwners))

	go func() {
		for {
			now := time.Now().In(cfg.Location)
			next := sched.Next(now)
			wait := next.Sub(now)
			log.Printf("Next digest at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			time.Sleep(wait)

			for _, ownerID := range cfg.DigestOwners {
				msg, err := BuildDigest(store, ownerID)
				if err != nil {
					log.Printf("digest owner=%s error: %v", ownerID, err)
					continue
				}
				if msg == "" {
					log.Printf("digest owner=%s skipped (no insights)", ownerID)
					continue
				}
				_, _, postErr := api.PostMessage(cfg.DigestChannelID, slack.MsgOptionText(msg, false))
				if postErr != nil {
					log.Printf("digest owner=%s post error: %v", ownerID, postErr)
				}
			}
		}
	}()
}

// BuildDigest formats the owner's current top pain points and feature
// requests into one Slack message. Returns "" when the owner has no
// insights yet.
func BuildDigest(store Store, ownerID string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), digestTimeout)
	defer cancel()

	painPoints, err := store.ListInsights(ctx, KindPainPoint, ownerID, digestInsightLimit)
	if err != nil {
		return "", fmt.Errorf("loading pain points: %w", err)
	}
	featureRequests, err := store.ListInsights(ctx, KindFeatureRequest, ownerID, digestInsightLimit)
	if err != nil {
		return "", fmt.Errorf("loading feature requests: %w", err)
	}
	if len(painPoints) == 0 && len(featureRequests) == 0 {
		return "", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Feedback digest for %s*\n", ownerID)
	if len(painPoints) > 0 {
		b.WriteString("\n:rotating_light: *Top pain points*\n")
		for _, pp := range painPoints {
			trend := ""
			if pp.TrendDirection == "up" {
				trend = " :chart_with_upwards_trend:"
			} else if pp.TrendDirection == "down" {
				trend = " :chart_with_downwards_trend:"
			}
			fmt.Fprintf(&b, "- [%s] %s (%d mentions)%s\n", pp.Priority, pp.Title, pp.MentionCount, trend)
		}
	}
	if len(featureRequests) > 0 {
		b.WriteString("\n:bulb: *Top feature requests*\n")
		for _, fr := range featureRequests {
			fmt.Fprintf(&b, "- [%s] %s (%d mentions)\n", fr.Priority, fr.Title, fr.MentionCount)
		}
	}
	return b.String(), nil
}
