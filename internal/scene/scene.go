// Package scene owns the unit of play: a scene accumulates submitted
// actions with their dice outcomes and resolves into one narrative beat.
package scene

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status describes the lifecycle state of a scene. The only transition is
// open to resolved; resolved scenes are immutable history.
type Status int

const (
	// StatusUnspecified represents an invalid scene status value.
	StatusUnspecified Status = iota
	// StatusOpen indicates the scene is accepting actions.
	StatusOpen
	// StatusResolved indicates the scene has been narrated and closed.
	StatusResolved
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusResolved:
		return "resolved"
	default:
		return "unspecified"
	}
}

// ActionKind selects how an action's dice are rolled.
type ActionKind int

const (
	// KindNone records an action with no dice.
	KindNone ActionKind = iota
	// KindCheck rolls a d20 skill check.
	KindCheck
	// KindAttack rolls to-hit and, on a hit, damage.
	KindAttack
)

func (k ActionKind) String() string {
	switch k {
	case KindCheck:
		return "check"
	case KindAttack:
		return "attack"
	default:
		return "none"
	}
}

var (
	// ErrNoActiveScene indicates an operation that requires an open scene.
	ErrNoActiveScene = errors.New("no active scene")
	// ErrSceneConflict indicates a scene is already open.
	ErrSceneConflict = errors.New("a scene is already open")
	// ErrEmptyTitle indicates a scene title is required.
	ErrEmptyTitle = errors.New("scene title is required")
	// ErrEmptyPlayerID indicates an action needs a player.
	ErrEmptyPlayerID = errors.New("player id is required")
	// ErrEmptyDescription indicates an action needs a description.
	ErrEmptyDescription = errors.New("action description is required")
)

// DamageOutcome captures a damage roll made for a hit.
type DamageOutcome struct {
	Expression string
	Faces      []int
	Total      int
}

// RollOutcome is the structured dice outcome recorded on an action. Dice
// are rolled once, when the action is submitted; resolution only narrates.
type RollOutcome struct {
	Faces  []int
	Total  int
	Target *int
	// Hit is set only when a target value was supplied.
	Hit    *bool
	Damage *DamageOutcome
}

// Action is one player submission. Immutable after creation; the roll
// outcome is set exactly once at submission time.
type Action struct {
	PlayerID    string
	Description string
	Kind        ActionKind
	// Key is the skill or weapon name the modifier was resolved against.
	Key         string
	Modifier    int
	Roll        *RollOutcome
	SubmittedAt time.Time
}

// Summary renders a one-line account of the action for recaps.
func (a Action) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s", a.PlayerID, a.Description)
	if a.Roll != nil {
		fmt.Fprintf(&sb, " (%s %d", a.Kind, a.Roll.Total)
		if a.Roll.Hit != nil {
			if *a.Roll.Hit {
				sb.WriteString(", hit")
			} else {
				sb.WriteString(", miss")
			}
		}
		if a.Roll.Damage != nil {
			fmt.Fprintf(&sb, ", %d damage", a.Roll.Damage.Total)
		}
		sb.WriteString(")")
	}
	return sb.String()
}

// Scene is one bounded unit of play from opening prompt to resolution.
type Scene struct {
	ID         string
	Title      string
	Prompt     string
	Status     Status
	Actions    []Action
	Narration  string
	Hooks      []string
	StartedAt  time.Time
	ResolvedAt *time.Time
}

// newScene constructs an open scene with generated identity.
func newScene(title, prompt string, now func() time.Time, idGenerator func() (string, error)) (Scene, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Scene{}, ErrEmptyTitle
	}

	id, err := idGenerator()
	if err != nil {
		return Scene{}, fmt.Errorf("generate scene id: %w", err)
	}

	return Scene{
		ID:        id,
		Title:     title,
		Prompt:    strings.TrimSpace(prompt),
		Status:    StatusOpen,
		StartedAt: now().UTC(),
	}, nil
}
