package narrate

import (
	_ "embed"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/riftlands/engine/internal/scene"
)

// HookCount is the fixed number of follow-up hooks every resolution carries.
const HookCount = 3

//go:embed templates.yaml
var templatesRaw []byte

// phraseBank holds the cinematic composer's template phrases, loaded once
// from the embedded YAML.
type phraseBank struct {
	Openers      []string `yaml:"openers"`
	CheckSuccess []string `yaml:"check_success"`
	CheckFailure []string `yaml:"check_failure"`
	AttackHit    []string `yaml:"attack_hit"`
	AttackMiss   []string `yaml:"attack_miss"`
	Freeform     []string `yaml:"freeform"`
	Closers      []string `yaml:"closers"`
	Hooks        []string `yaml:"hooks"`
}

// loadPhraseBank parses the embedded templates. The file ships with the
// binary, so a parse failure is a build defect and panics at init.
func loadPhraseBank() phraseBank {
	var bank phraseBank
	if err := yaml.Unmarshal(templatesRaw, &bank); err != nil {
		panic(fmt.Sprintf("parse embedded narration templates: %v", err))
	}
	return bank
}

var defaultBank = loadPhraseBank()

// Cinematic is the deterministic narration composer. It is pure with
// respect to the scene content and never fails; it is the guaranteed
// fallback when the generative backend is unavailable.
type Cinematic struct {
	bank phraseBank
}

// NewCinematic creates a composer over the embedded phrase banks.
func NewCinematic() *Cinematic {
	return &Cinematic{bank: defaultBank}
}

// Compose renders narration covering every recorded action, in submission
// order, from the scene's prompt and outcomes. Phrase choice is keyed by a
// hash of the scene content, so the same scene always reads the same.
func (c *Cinematic) Compose(s scene.Scene) string {
	var sb strings.Builder

	if s.Prompt != "" {
		sb.WriteString(s.Prompt)
		sb.WriteString(" ")
	}
	sb.WriteString(pick(c.bank.Openers, sceneDigest(s)))

	for i, action := range s.Actions {
		sb.WriteString(" ")
		sb.WriteString(c.actionLine(action, sceneDigest(s)+uint64(i)))
	}

	sb.WriteString(" ")
	sb.WriteString(pick(c.bank.Closers, sceneDigest(s)+uint64(len(s.Actions))))
	return sb.String()
}

// Hooks synthesizes HookCount distinct follow-up prompts. A bank edited
// down to fewer distinct entries yields fewer hooks rather than looping.
func (c *Cinematic) Hooks(s scene.Scene) []string {
	digest := sceneDigest(s)
	total := len(c.bank.Hooks)
	hooks := make([]string, 0, HookCount)
	for i := 0; i < total && len(hooks) < HookCount; i++ {
		candidate := c.bank.Hooks[(digest+uint64(i))%uint64(total)]
		if contains(hooks, candidate) {
			continue
		}
		hooks = append(hooks, candidate)
	}
	return hooks
}

// actionLine renders one action's sentence based on its recorded outcome.
func (c *Cinematic) actionLine(action scene.Action, digest uint64) string {
	replacer := func(template string) string {
		pairs := []string{
			"{player}", action.PlayerID,
			"{description}", strings.TrimRight(action.Description, "."),
		}
		if action.Roll != nil {
			pairs = append(pairs, "{total}", strconv.Itoa(action.Roll.Total))
			if action.Roll.Target != nil {
				pairs = append(pairs, "{target}", strconv.Itoa(*action.Roll.Target))
			}
			if action.Roll.Damage != nil {
				pairs = append(pairs, "{damage}", strconv.Itoa(action.Roll.Damage.Total))
			}
		}
		return strings.NewReplacer(pairs...).Replace(template)
	}

	switch {
	case action.Kind == scene.KindAttack && action.Roll != nil && action.Roll.Hit != nil && !*action.Roll.Hit:
		return replacer(pick(c.bank.AttackMiss, digest))
	case action.Kind == scene.KindAttack && action.Roll != nil:
		return replacer(pick(c.bank.AttackHit, digest))
	case action.Kind == scene.KindCheck && action.Roll != nil && action.Roll.Total >= 10+action.Modifier:
		return replacer(pick(c.bank.CheckSuccess, digest))
	case action.Kind == scene.KindCheck && action.Roll != nil:
		return replacer(pick(c.bank.CheckFailure, digest))
	default:
		return replacer(pick(c.bank.Freeform, digest))
	}
}

// sceneDigest hashes the scene content that narration depends on.
func sceneDigest(s scene.Scene) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s.ID))
	_, _ = h.Write([]byte(s.Title))
	_, _ = h.Write([]byte(s.Prompt))
	for _, action := range s.Actions {
		_, _ = h.Write([]byte(action.PlayerID))
		_, _ = h.Write([]byte(action.Description))
		if action.Roll != nil {
			_, _ = h.Write([]byte(strconv.Itoa(action.Roll.Total)))
		}
	}
	return h.Sum64()
}

func pick(options []string, digest uint64) string {
	if len(options) == 0 {
		return ""
	}
	return options[digest%uint64(len(options))]
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
