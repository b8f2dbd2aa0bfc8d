package scene

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/riftlands/engine/internal/core/check"
	"github.com/riftlands/engine/internal/core/dice"
	"github.com/riftlands/engine/internal/platform/id"
	"github.com/riftlands/engine/internal/sheet"
)

// recapCapacity bounds the ring of resolved scenes retained for recaps.
const recapCapacity = 5

// defaultDamage is rolled when neither the caller nor the sheet names
// damage dice for a hit.
const defaultDamage = "1d6"

// NarrationResult is what a narrator produces for a resolved scene.
type NarrationResult struct {
	Narration string
	Hooks     []string
}

// Narrator turns a scene's accumulated actions into narration and hooks.
// Implementations must not fail on the forced path.
type Narrator interface {
	Narrate(ctx context.Context, scene Scene) NarrationResult
	// NarrateForced keeps the supplied narration but still synthesizes hooks.
	NarrateForced(scene Scene, narration string) NarrationResult
}

// SubmitInput carries one action submission.
type SubmitInput struct {
	PlayerID    string
	Description string
	Kind        ActionKind
	// Key names the skill (checks) or weapon (attacks) to resolve against.
	Key string
	// Explicit is a modifier the player supplied directly; it wins over
	// sheet-derived values.
	Explicit *int
	// Target is the caller-supplied to-hit target value for attacks.
	Target *int
	// Damage overrides the damage dice expression for attacks.
	Damage string
}

// SubmitResult is the outcome of recording an action.
type SubmitResult struct {
	Action Action
	// SheetMissing is true when the modifier fell through to the default
	// because the player's sheet had no data; the caller sends a private
	// reminder on this signal.
	SheetMissing bool
}

// StatusSnapshot is a read-only view of the active scene for GM visibility.
type StatusSnapshot struct {
	Scene Scene
	// MissingSheets lists players with recorded actions but no
	// sheet-derived data.
	MissingSheets []string
}

// Manager owns the single active scene and the recap history ring. All
// operations serialize on the manager's mutex: a submit, resolve, or read
// runs to completion before the next operation observes the state.
type Manager struct {
	index    *sheet.Index
	narrator Narrator

	mu     sync.Mutex
	active *Scene
	recap  []Scene
	rng    *rand.Rand

	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewManager creates a Manager with entropy-seeded dice.
func NewManager(index *sheet.Index, narrator Narrator) *Manager {
	return NewManagerWithSeed(index, narrator, time.Now().UnixNano())
}

// NewManagerWithSeed creates a Manager with deterministic dice, for tests.
func NewManagerWithSeed(index *sheet.Index, narrator Narrator, seed int64) *Manager {
	return &Manager{
		index:       index,
		narrator:    narrator,
		rng:         rand.New(rand.NewSource(seed)),
		clock:       time.Now,
		idGenerator: id.NewID,
	}
}

// Start opens a new scene. Exactly one scene may be open at a time.
func (m *Manager) Start(title, prompt string) (Scene, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return Scene{}, ErrSceneConflict
	}

	created, err := newScene(title, prompt, m.clock, m.idGenerator)
	if err != nil {
		return Scene{}, err
	}
	m.active = &created
	return created, nil
}

// Submit records an action against the open scene. The effective modifier
// resolves explicit > sheet > default 0, and dice are rolled here, not at
// resolve time, so the returned Action already carries its outcome.
func (m *Manager) Submit(input SubmitInput) (SubmitResult, error) {
	input.PlayerID = strings.TrimSpace(input.PlayerID)
	if input.PlayerID == "" {
		return SubmitResult{}, ErrEmptyPlayerID
	}
	input.Description = strings.TrimSpace(input.Description)
	if input.Description == "" {
		return SubmitResult{}, ErrEmptyDescription
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return SubmitResult{}, ErrNoActiveScene
	}

	action := Action{
		PlayerID:    input.PlayerID,
		Description: input.Description,
		Kind:        input.Kind,
		Key:         strings.ToLower(strings.TrimSpace(input.Key)),
		SubmittedAt: m.clock().UTC(),
	}

	sheetMissing := false
	switch input.Kind {
	case KindCheck:
		lookup := m.index.Lookup(input.PlayerID, input.Explicit, action.Key)
		sheetMissing = lookup.Source == sheet.SourceDefault
		action.Modifier = lookup.Modifier
		action.Roll = m.rollCheck(lookup.Modifier)
	case KindAttack:
		lookup := m.index.LookupAttack(input.PlayerID, input.Explicit, action.Key)
		sheetMissing = lookup.Source == sheet.SourceDefault
		action.Modifier = lookup.Modifier
		roll, err := m.rollAttack(input, lookup.Modifier)
		if err != nil {
			return SubmitResult{}, err
		}
		action.Roll = roll
	}

	m.active.Actions = append(m.active.Actions, action)
	return SubmitResult{Action: action, SheetMissing: sheetMissing}, nil
}

// rollCheck rolls 1d20 plus modifier. Pass/fail thresholds are GM policy
// and are not judged here.
func (m *Manager) rollCheck(modifier int) *RollOutcome {
	result, err := dice.RollWithRng(m.rng, []dice.Spec{{Sides: dice.D20, Count: 1}})
	if err != nil {
		// Unreachable: the die spec is hardcoded and always valid.
		panic(err)
	}
	return &RollOutcome{
		Faces: result.Rolls[0].Results,
		Total: result.Total + modifier,
	}
}

// rollAttack rolls to-hit and, when the attack is recorded as a hit,
// damage. Without a target value the attack lands by default and damage
// is still rolled.
func (m *Manager) rollAttack(input SubmitInput, modifier int) (*RollOutcome, error) {
	toHit, err := dice.RollWithRng(m.rng, []dice.Spec{{Sides: dice.D20, Count: 1}})
	if err != nil {
		panic(err)
	}

	outcome := &RollOutcome{
		Faces: toHit.Rolls[0].Results,
		Total: toHit.Total + modifier,
	}

	landed := true
	if input.Target != nil {
		target := *input.Target
		hit := check.MeetsDifficulty(outcome.Total, target)
		outcome.Target = &target
		outcome.Hit = &hit
		landed = hit
	}

	if landed {
		expr, err := dice.ParseExpr(m.damageExpression(input))
		if err != nil {
			return nil, fmt.Errorf("parse damage dice: %w", err)
		}
		rolled, err := expr.Roll(m.rng)
		if err != nil {
			return nil, fmt.Errorf("roll damage dice: %w", err)
		}
		outcome.Damage = &DamageOutcome{
			Expression: expr.String(),
			Faces:      rolled.Faces,
			Total:      rolled.Total,
		}
	}

	return outcome, nil
}

// damageExpression resolves damage dice: caller-supplied > sheet > default.
func (m *Manager) damageExpression(input SubmitInput) string {
	if trimmed := strings.TrimSpace(input.Damage); trimmed != "" {
		return trimmed
	}
	if record, ok := m.index.Record(input.PlayerID); ok && record.DamageDice != "" {
		return record.DamageDice
	}
	return defaultDamage
}

// Resolve closes the active scene, narrates it, and archives it into the
// recap ring. The active slot is empty afterwards.
func (m *Manager) Resolve(ctx context.Context) (Scene, error) {
	return m.resolve(ctx, "")
}

// ForceResolve closes the active scene with GM-supplied narration. Hooks
// are still synthesized; narration text is the only overridable part.
func (m *Manager) ForceResolve(ctx context.Context, narration string) (Scene, error) {
	narration = strings.TrimSpace(narration)
	if narration == "" {
		return m.resolve(ctx, "")
	}
	return m.resolve(ctx, narration)
}

func (m *Manager) resolve(ctx context.Context, forced string) (Scene, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return Scene{}, ErrNoActiveScene
	}

	resolved := *m.active
	resolved.Status = StatusResolved
	resolvedAt := m.clock().UTC()
	resolved.ResolvedAt = &resolvedAt

	var result NarrationResult
	if forced != "" {
		result = m.narrator.NarrateForced(resolved, forced)
	} else {
		result = m.narrator.Narrate(ctx, resolved)
	}
	resolved.Narration = result.Narration
	resolved.Hooks = result.Hooks

	m.recap = append(m.recap, resolved)
	if len(m.recap) > recapCapacity {
		m.recap = m.recap[len(m.recap)-recapCapacity:]
	}
	m.active = nil

	return resolved, nil
}

// RecapEntry is one resolved scene's recap line set.
type RecapEntry struct {
	Title     string
	Summaries []string
}

// Recap returns the last n resolved scenes, most recent first. n is
// clamped to the 3..5 range the recap ring supports.
func (m *Manager) Recap(n int) []RecapEntry {
	if n < 3 {
		n = 3
	}
	if n > recapCapacity {
		n = recapCapacity
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]RecapEntry, 0, n)
	for i := len(m.recap) - 1; i >= 0 && len(entries) < n; i-- {
		resolved := m.recap[i]
		summaries := make([]string, 0, len(resolved.Actions))
		for _, action := range resolved.Actions {
			summaries = append(summaries, action.Summary())
		}
		entries = append(entries, RecapEntry{Title: resolved.Title, Summaries: summaries})
	}
	return entries
}

// Status returns a read-only snapshot of the active scene, including which
// players still lack sheet-derived data.
func (m *Manager) Status() (StatusSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return StatusSnapshot{}, ErrNoActiveScene
	}

	snapshot := *m.active
	snapshot.Actions = append([]Action(nil), m.active.Actions...)

	seen := make(map[string]bool)
	var missing []string
	for _, action := range snapshot.Actions {
		if seen[action.PlayerID] {
			continue
		}
		seen[action.PlayerID] = true
		if _, ok := m.index.Record(action.PlayerID); !ok {
			missing = append(missing, action.PlayerID)
		}
	}

	return StatusSnapshot{Scene: snapshot, MissingSheets: missing}, nil
}
