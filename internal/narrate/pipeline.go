// Package narrate resolves a scene's accumulated actions into narration and
// follow-up hooks, via a generative backend when enabled and a deterministic
// cinematic composer otherwise.
package narrate

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/riftlands/engine/internal/scene"
	"github.com/riftlands/engine/internal/telemetry"
)

// defaultBackendTimeout bounds a single generative-narration call.
const defaultBackendTimeout = 20 * time.Second

// ErrBackendUnavailable indicates the generative backend failed or returned
// unusable output. It never reaches players; the pipeline falls back to the
// cinematic composer and the error is recorded for operators only.
var ErrBackendUnavailable = errors.New("narration backend unavailable")

// BackendResult is a generative backend's narration for one scene.
type BackendResult struct {
	Narration string
	Hooks     []string
}

// Backend is the generative-narration collaborator.
type Backend interface {
	Narrate(ctx context.Context, s scene.Scene) (BackendResult, error)
}

// Pipeline selects between the generative backend and the cinematic
// fallback. The narration-enabled toggle is process-wide state owned here:
// it starts from the configured default and is mutated only by the GM
// toggle operation; it does not persist across restarts.
type Pipeline struct {
	backend   Backend
	cinematic *Cinematic
	emitter   *telemetry.Emitter
	timeout   time.Duration

	mu      sync.Mutex
	enabled bool
}

// NewPipeline creates a pipeline. A nil backend behaves as narration
// disabled regardless of the toggle.
func NewPipeline(backend Backend, emitter *telemetry.Emitter, enabled bool) *Pipeline {
	return &Pipeline{
		backend:   backend,
		cinematic: NewCinematic(),
		emitter:   emitter,
		timeout:   defaultBackendTimeout,
		enabled:   enabled,
	}
}

// Enabled reports the current narration toggle state.
func (p *Pipeline) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// SetEnabled flips the narration toggle. GM-only by convention; the
// pipeline does not enforce authorization.
func (p *Pipeline) SetEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = enabled
}

// Narrate produces narration and exactly HookCount hooks for a scene.
// Backend failure is silent to the player-facing outcome: the cinematic
// composer takes over and the failure is logged and emitted as telemetry.
func (p *Pipeline) Narrate(ctx context.Context, s scene.Scene) scene.NarrationResult {
	if p.Enabled() && p.backend != nil {
		result, err := p.narrateWithBackend(ctx, s)
		if err == nil {
			return result
		}
		log.Printf("narration backend fallback: %v", err)
		_ = p.emitter.Emit(ctx, telemetry.SeverityWarn, telemetry.ComponentNarration,
			"ai_fallback", map[string]string{"scene": s.ID, "error": err.Error()})
	}

	return scene.NarrationResult{
		Narration: p.cinematic.Compose(s),
		Hooks:     p.cinematic.Hooks(s),
	}
}

// NarrateForced keeps the supplied narration text and synthesizes the
// standard hooks. This path never fails.
func (p *Pipeline) NarrateForced(s scene.Scene, narration string) scene.NarrationResult {
	return scene.NarrationResult{
		Narration: narration,
		Hooks:     p.cinematic.Hooks(s),
	}
}

func (p *Pipeline) narrateWithBackend(ctx context.Context, s scene.Scene) (scene.NarrationResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	result, err := p.backend.Narrate(callCtx, s)
	if err != nil {
		return scene.NarrationResult{}, err
	}
	if result.Narration == "" {
		return scene.NarrationResult{}, ErrBackendUnavailable
	}

	hooks := result.Hooks
	if len(hooks) < HookCount {
		hooks = p.cinematic.Hooks(s)
	}
	return scene.NarrationResult{
		Narration: result.Narration,
		Hooks:     hooks[:HookCount],
	}, nil
}
