// Package registrar reconciles the bot's declared command surface with the
// chat platform. The protocol is an explicit attempt/verify/retry/fallback
// sequence so the retry bound and fallback trigger are independently
// testable, and every run begins with an unconditional wipe, which makes
// the whole sequence idempotent.
package registrar

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/riftlands/engine/internal/chat"
	"github.com/riftlands/engine/internal/telemetry"
)

const (
	defaultSettleDelay     = 10 * time.Second
	defaultMaxAttempts     = 3
	defaultInitialInterval = 3 * time.Second
)

// ErrRegistrationFailed indicates every registration path was exhausted.
// Callers log it and continue in degraded mode; it is never fatal.
var ErrRegistrationFailed = errors.New("command registration failed")

// errVerifyMismatch indicates the platform reported a different command set
// than the one just published.
var errVerifyMismatch = errors.New("registered commands do not match desired set")

// Config controls the reconciliation protocol.
type Config struct {
	// GuildID selects the primary registration scope. Empty means commands
	// register globally from the start.
	GuildID string
	// SettleDelay is the fixed wait between the wipe and the publish, for
	// the platform to propagate the wipe.
	SettleDelay time.Duration
	// MaxAttempts caps publish-and-verify attempts per scope.
	MaxAttempts uint
	// InitialInterval seeds the exponential retry backoff.
	InitialInterval time.Duration
}

// Report describes where the command surface ended up.
type Report struct {
	Scope    chat.Scope
	Commands []chat.Command
	// Degraded is true when guild-scope publication failed and the set
	// was registered globally instead.
	Degraded bool
}

// Registrar runs the two-phase wipe/sync protocol.
type Registrar struct {
	commander chat.Commander
	emitter   *telemetry.Emitter
	cfg       Config
	sleep     func(ctx context.Context, d time.Duration) error
}

// New creates a Registrar. Zero config fields take protocol defaults.
func New(commander chat.Commander, emitter *telemetry.Emitter, cfg Config) *Registrar {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = defaultInitialInterval
	}
	return &Registrar{
		commander: commander,
		emitter:   emitter,
		cfg:       cfg,
		sleep:     sleepContext,
	}
}

// Sync reconciles the desired command set with the platform:
//
//  1. wipe the guild scope, 2. wipe the global scope, 3. wait a fixed
//     settle interval, 4. publish to the primary scope, 5. verify via
//     read-back, retrying 4-5 with backoff up to MaxAttempts, 6. fall back
//     to global scope when guild publication stays broken.
//
// Running Sync twice in a row converges to the same registered set.
func (r *Registrar) Sync(ctx context.Context, desired []chat.Command) (Report, error) {
	guildScope := chat.Scope{Kind: chat.ScopeGuild, GuildID: r.cfg.GuildID}
	globalScope := chat.Scope{Kind: chat.ScopeGlobal}

	if r.cfg.GuildID != "" {
		r.wipe(ctx, guildScope)
	}
	r.wipe(ctx, globalScope)

	log.Printf("registrar: waiting %s for wipe to settle", r.cfg.SettleDelay)
	if err := r.sleep(ctx, r.cfg.SettleDelay); err != nil {
		return Report{}, err
	}

	primary := globalScope
	if r.cfg.GuildID != "" {
		primary = guildScope
	}

	registered, err := r.publishWithRetry(ctx, primary, desired)
	if err == nil {
		return Report{Scope: primary, Commands: registered}, nil
	}

	if primary.Kind == chat.ScopeGuild {
		log.Printf("registrar: guild publication exhausted retries, falling back to global: %v", err)
		registered, fallbackErr := r.publishAndVerify(ctx, globalScope, desired)
		if fallbackErr == nil {
			_ = r.emitter.Emit(ctx, telemetry.SeverityWarn, telemetry.ComponentRegistrar,
				"registration_degraded", map[string]string{"guild": r.cfg.GuildID})
			return Report{Scope: globalScope, Commands: registered, Degraded: true}, nil
		}
		err = fallbackErr
	}

	return Report{}, fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
}

// wipe clears a scope. Wipe failures are logged but not fatal: the
// publish step overwrites the scope wholesale anyway.
func (r *Registrar) wipe(ctx context.Context, scope chat.Scope) {
	if _, err := r.commander.Overwrite(ctx, scope, nil); err != nil {
		log.Printf("registrar: wipe %s scope: %v", scope.Kind, err)
		return
	}
	log.Printf("registrar: wiped %s scope", scope.Kind)
}

// publishWithRetry runs publish-and-verify under exponential backoff.
func (r *Registrar) publishWithRetry(ctx context.Context, scope chat.Scope, desired []chat.Command) ([]chat.Command, error) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = r.cfg.InitialInterval

	attempt := 0
	operation := func() ([]chat.Command, error) {
		attempt++
		registered, err := r.publishAndVerify(ctx, scope, desired)
		if err != nil {
			log.Printf("registrar: publish to %s scope attempt %d/%d: %v",
				scope.Kind, attempt, r.cfg.MaxAttempts, err)
			return nil, err
		}
		return registered, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(r.cfg.MaxAttempts),
	)
}

// publishAndVerify pushes the desired set and confirms the platform
// reports it back by name.
func (r *Registrar) publishAndVerify(ctx context.Context, scope chat.Scope, desired []chat.Command) ([]chat.Command, error) {
	if _, err := r.commander.Overwrite(ctx, scope, desired); err != nil {
		return nil, fmt.Errorf("overwrite %s commands: %w", scope.Kind, err)
	}

	registered, err := r.commander.Registered(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("read back %s commands: %w", scope.Kind, err)
	}
	if !sameNames(desired, registered) {
		return nil, fmt.Errorf("%w: want %v, got %v", errVerifyMismatch, names(desired), names(registered))
	}
	return registered, nil
}

func names(commands []chat.Command) []string {
	out := make([]string, 0, len(commands))
	for _, command := range commands {
		out = append(out, command.Name)
	}
	sort.Strings(out)
	return out
}

func sameNames(a, b []chat.Command) bool {
	an, bn := names(a), names(b)
	if len(an) != len(bn) {
		return false
	}
	for i := range an {
		if an[i] != bn[i] {
			return false
		}
	}
	return true
}

// sleepContext waits for the duration or the context, whichever ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
