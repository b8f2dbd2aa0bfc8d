// Package sheet derives per-player stat modifiers from player-authored
// pinned documents and keeps an index of them consistent across edits.
package sheet

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoData indicates a document yielded no extractable modifier fields.
// It is a fallback signal, not a failure: callers use defaults and remind
// the player instead of reporting an error.
var ErrNoData = errors.New("no parseable sheet data")

// Record holds the modifiers parsed from one player's sheet. A Record is
// immutable once produced; re-parses replace it wholesale.
type Record struct {
	// Skills maps a lower-cased skill or weapon name to its bonus.
	Skills map[string]int
	// AttackBonus is the sheet's generic to-hit bonus, when stated.
	AttackBonus *int
	// DamageDice is the sheet's damage expression (e.g. "2d6+3"), when stated.
	DamageDice string
	// Revision is the opaque version token of the source document.
	Revision string
}

var (
	// skillLine matches "Acrobatics +2", "stealth: 3", "Animal Handling = -1".
	skillLine = regexp.MustCompile(`^([A-Za-z][A-Za-z' ]*?)\s*[:=]?\s*([+-]?\d+)$`)
	// attackLabel matches the generic to-hit bonus labels.
	attackLabel = regexp.MustCompile(`(?i)^(?:attack|to[ -]?hit)\s*(?:bonus)?\s*[:=]?\s*([+-]?\d+)$`)
	// damageLine matches "damage 2d6+3" or a named weapon "longsword: 1d8+2".
	damageLine = regexp.MustCompile(`(?i)^([A-Za-z][A-Za-z' ]*?)\s*[:=]?\s*(\d*[dD]\d+(?:[+-]\d+)?)$`)
)

// ignoredSkillLabels are labels that look like skill lines but carry other
// meanings on common sheet layouts.
var ignoredSkillLabels = map[string]bool{
	"hp": true, "hit points": true, "ac": true, "armor class": true,
	"level": true, "speed": true, "initiative": true,
	"attack": true, "to hit": true, "damage": true,
}

// Parse extracts a modifier Record from free-form sheet text.
//
// Parse is tolerant by contract: malformed input never produces an error
// other than ErrNoData, which is returned when zero fields could be
// extracted. It is side-effect-free.
func Parse(text string) (Record, error) {
	record := Record{Skills: make(map[string]int)}
	found := false

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(strings.Trim(strings.TrimSpace(rawLine), "-*•"))
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if matches := attackLabel.FindStringSubmatch(line); matches != nil {
			if bonus, err := strconv.Atoi(matches[1]); err == nil {
				record.AttackBonus = &bonus
				found = true
			}
			continue
		}

		if matches := damageLine.FindStringSubmatch(line); matches != nil {
			label := normalizeKey(matches[1])
			expr := strings.ToLower(matches[2])
			if record.DamageDice == "" {
				record.DamageDice = expr
				found = true
			}
			// A named weapon line also registers the weapon as a lookup key
			// carrying no flat bonus of its own.
			if label != "damage" && label != "" {
				if _, exists := record.Skills[label]; !exists {
					record.Skills[label] = 0
				}
			}
			continue
		}

		if matches := skillLine.FindStringSubmatch(line); matches != nil {
			key := normalizeKey(matches[1])
			if key == "" || ignoredSkillLabels[key] {
				continue
			}
			if bonus, err := strconv.Atoi(matches[2]); err == nil {
				record.Skills[key] = bonus
				found = true
			}
			continue
		}
	}

	if !found {
		return Record{}, ErrNoData
	}
	return record, nil
}

// Modifier returns the bonus for a named skill or weapon and whether the
// sheet had an entry for it.
func (r Record) Modifier(key string) (int, bool) {
	bonus, ok := r.Skills[normalizeKey(key)]
	return bonus, ok
}

// normalizeKey lower-cases a label and collapses inner whitespace.
func normalizeKey(key string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(key)))
	return strings.Join(fields, " ")
}
