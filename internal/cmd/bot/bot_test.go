package bot

import (
	"flag"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("bot", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.OpenAIModel != "gpt-4o-mini" {
		t.Errorf("OpenAIModel = %q, want default", cfg.OpenAIModel)
	}
	if cfg.DBPath != "riftlands.db" {
		t.Errorf("DBPath = %q, want default", cfg.DBPath)
	}
	if !cfg.NarrationEnabled {
		t.Error("NarrationEnabled must default to true")
	}
}

func TestParseConfigEnvAndFlags(t *testing.T) {
	t.Setenv("RIFTLANDS_BOT_TOKEN", "token-1")
	t.Setenv("RIFTLANDS_GUILD_ID", "guild-1")
	t.Setenv("RIFTLANDS_NARRATION_ENABLED", "false")

	fs := flag.NewFlagSet("bot", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-guild-id", "guild-2", "-story-channel", "story"})
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.BotToken != "token-1" {
		t.Errorf("BotToken = %q", cfg.BotToken)
	}
	if cfg.GuildID != "guild-2" {
		t.Errorf("GuildID = %q, want flag to override env", cfg.GuildID)
	}
	if cfg.StoryChannelID != "story" {
		t.Errorf("StoryChannelID = %q", cfg.StoryChannelID)
	}
	if cfg.NarrationEnabled {
		t.Error("NarrationEnabled must honor env false")
	}
}
