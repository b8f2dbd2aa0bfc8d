// Package bot parses bot command flags and composes the session engine.
package bot

import (
	"context"
	"errors"
	"flag"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"

	botapp "github.com/riftlands/engine/internal/bot"
	"github.com/riftlands/engine/internal/chat/discord"
	"github.com/riftlands/engine/internal/narrate"
	entrypoint "github.com/riftlands/engine/internal/platform/cmd"
	"github.com/riftlands/engine/internal/registrar"
	"github.com/riftlands/engine/internal/scene"
	"github.com/riftlands/engine/internal/sheet"
	"github.com/riftlands/engine/internal/storage/sqlite"
	"github.com/riftlands/engine/internal/telemetry"
)

// Config holds bot command configuration.
type Config struct {
	BotToken         string `env:"RIFTLANDS_BOT_TOKEN"`
	GuildID          string `env:"RIFTLANDS_GUILD_ID"`
	RollsChannelID   string `env:"RIFTLANDS_ROLLS_CHANNEL"`
	StoryChannelID   string `env:"RIFTLANDS_STORY_CHANNEL"`
	OpenAIAPIKey     string `env:"RIFTLANDS_OPENAI_API_KEY"`
	OpenAIModel      string `env:"RIFTLANDS_OPENAI_MODEL"      envDefault:"gpt-4o-mini"`
	DBPath           string `env:"RIFTLANDS_DB_PATH"           envDefault:"riftlands.db"`
	NarrationEnabled bool   `env:"RIFTLANDS_NARRATION_ENABLED" envDefault:"true"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.GuildID, "guild-id", cfg.GuildID, "home guild for command registration")
	fs.StringVar(&cfg.RollsChannelID, "rolls-channel", cfg.RollsChannelID, "channel for roll confirmations")
	fs.StringVar(&cfg.StoryChannelID, "story-channel", cfg.StoryChannelID, "channel for scene narration")
	fs.StringVar(&cfg.OpenAIModel, "openai-model", cfg.OpenAIModel, "model for generative narration")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "telemetry database path")
	fs.BoolVar(&cfg.NarrationEnabled, "narration", cfg.NarrationEnabled, "start with generative narration enabled")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the engine and drives the Discord session until ctx ends.
//
// A missing bot token is reported once and the process idles instead of
// exiting, so a supervisor does not crash-loop it while credentials are
// being provisioned.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceBot, func(ctx context.Context) error {
		if strings.TrimSpace(cfg.BotToken) == "" {
			log.Print("RIFTLANDS_BOT_TOKEN is not set; cannot connect to Discord. Set the token and restart.")
			<-ctx.Done()
			return nil
		}

		var emitter *telemetry.Emitter
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			log.Printf("open telemetry store: %v (telemetry disabled)", err)
		} else {
			defer store.Close()
			emitter = telemetry.NewEmitter(store)
		}

		platform := discord.NewPlatform(cfg.BotToken, cfg.GuildID)
		index := sheet.NewIndex(platform, emitter)

		var backend narrate.Backend
		if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
			backend = narrate.NewOpenAIBackend(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		} else if cfg.NarrationEnabled {
			log.Print("RIFTLANDS_OPENAI_API_KEY is not set; narration falls back to the cinematic composer")
		}
		pipeline := narrate.NewPipeline(backend, emitter, cfg.NarrationEnabled)

		manager := scene.NewManager(index, pipeline)
		handler := botapp.NewHandler(platform, manager, index, pipeline, emitter, botapp.HandlerConfig{
			RollsChannelID: cfg.RollsChannelID,
			StoryChannelID: cfg.StoryChannelID,
		})
		dispatcher := botapp.NewDispatcher(handler)

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			return platform.Session.Run(gctx)
		})

		// Startup work that needs the gateway READY: command registration,
		// then the initial sheet index build.
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-platform.Ready():
			}

			reg := registrar.New(platform, emitter, registrar.Config{GuildID: cfg.GuildID})
			report, err := reg.Sync(gctx, botapp.Commands())
			switch {
			case errors.Is(err, registrar.ErrRegistrationFailed):
				log.Printf("command registration failed, text fallback only: %v", err)
			case err != nil:
				return err
			case report.Degraded:
				log.Printf("commands registered globally after guild failure (%d commands)", len(report.Commands))
			default:
				log.Printf("commands registered at %s scope (%d commands)", report.Scope.Kind, len(report.Commands))
			}

			if err := index.Rebuild(gctx); err != nil {
				log.Printf("initial sheet index build: %v", err)
			} else {
				log.Printf("sheet index ready: %d player sheet(s)", len(index.Snapshot()))
			}
			return nil
		})

		g.Go(func() error {
			dispatcher.Run(gctx, botapp.Events{
				Commands: platform.Commands(),
				Pins:     platform.Pins(),
				Messages: platform.Messages(),
			})
			return nil
		})

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
}
