package main

import (
	"log"

	"github.com/slack-go/slack"
)

func main() {
	cfg := LoadConfig()

	store, err := OpenStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	defer store.Close()

	oracle := NewOracleClient(OracleConfig{
		Provider:        cfg.LLMProvider,
		Model:           cfg.LLMModel,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIBaseURL:   cfg.OpenAIBaseURL,
	})
	synth := NewSynthesizer(store, oracle, cfg.InsightWindowSize)

	var api *slack.Client
	if cfg.SlackBotToken != "" {
		api = slack.New(cfg.SlackBotToken)
	}
	StartDigestScheduler(cfg, store, api)

	srv := NewServer(store, oracle, synth, cfg.ClassifyTimeout(), cfg.SynthesizeTimeout())

	log.Printf("Starting Feedback Insight Service on %s", cfg.ListenAddr)
	if err := srv.Router().Run(cfg.ListenAddr); err != nil {
		log.Fatalf("HTTP server error: %v", err)
	}
}
