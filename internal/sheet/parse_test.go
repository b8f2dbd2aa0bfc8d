package sheet

import (
	"errors"
	"testing"
)

func TestParseSkillLines(t *testing.T) {
	text := `Ayla's sheet
Acrobatics +2
stealth: 3
Animal Handling = -1
Perception 0`

	record, err := Parse(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	want := map[string]int{
		"acrobatics":      2,
		"stealth":         3,
		"animal handling": -1,
		"perception":      0,
	}
	for key, bonus := range want {
		got, ok := record.Modifier(key)
		if !ok {
			t.Errorf("missing skill %q", key)
			continue
		}
		if got != bonus {
			t.Errorf("skill %q = %d, want %d", key, got, bonus)
		}
	}
}

func TestParseAttackAndDamage(t *testing.T) {
	text := `to hit: +4
damage 2d6+3`

	record, err := Parse(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if record.AttackBonus == nil || *record.AttackBonus != 4 {
		t.Errorf("AttackBonus = %v, want 4", record.AttackBonus)
	}
	if record.DamageDice != "2d6+3" {
		t.Errorf("DamageDice = %q, want %q", record.DamageDice, "2d6+3")
	}
}

func TestParseWeaponLineRegistersWeapon(t *testing.T) {
	text := `longsword 1d8+2
attack +5`

	record, err := Parse(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if record.DamageDice != "1d8+2" {
		t.Errorf("DamageDice = %q, want %q", record.DamageDice, "1d8+2")
	}
	if _, ok := record.Modifier("longsword"); !ok {
		t.Error("expected longsword registered as a lookup key")
	}
	if record.AttackBonus == nil || *record.AttackBonus != 5 {
		t.Errorf("AttackBonus = %v, want 5", record.AttackBonus)
	}
}

func TestParseIgnoresNonModifierLabels(t *testing.T) {
	text := `HP 24
AC 15
stealth +1`

	record, err := Parse(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, ok := record.Modifier("hp"); ok {
		t.Error("hp should not register as a skill")
	}
	if _, ok := record.Modifier("ac"); ok {
		t.Error("ac should not register as a skill")
	}
	if bonus, ok := record.Modifier("stealth"); !ok || bonus != 1 {
		t.Errorf("stealth = %d (%v), want 1", bonus, ok)
	}
}

func TestParseBulletedLines(t *testing.T) {
	text := "- Acrobatics +2\n* Stealth -1"

	record, err := Parse(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if bonus, ok := record.Modifier("acrobatics"); !ok || bonus != 2 {
		t.Errorf("acrobatics = %d (%v), want 2", bonus, ok)
	}
	if bonus, ok := record.Modifier("stealth"); !ok || bonus != -1 {
		t.Errorf("stealth = %d (%v), want -1", bonus, ok)
	}
}

func TestParseNoData(t *testing.T) {
	inputs := []string{
		"",
		"just some prose about my character",
		"### markdown header\n\n> quoted flavor text",
	}
	for _, input := range inputs {
		if _, err := Parse(input); !errors.Is(err, ErrNoData) {
			t.Errorf("Parse(%q) err = %v, want ErrNoData", input, err)
		}
	}
}

func TestParseNeverPanics(t *testing.T) {
	inputs := []string{
		"\x00\x01\x02",
		"++++----",
		"d d d d",
		"a: 99999999999999999999",
	}
	for _, input := range inputs {
		// Overflowed numbers and binary noise fall through to ErrNoData.
		record, err := Parse(input)
		if err == nil && len(record.Skills) == 0 && record.AttackBonus == nil && record.DamageDice == "" {
			t.Errorf("Parse(%q) returned empty record without ErrNoData", input)
		}
	}
}

func TestModifierIsCaseInsensitive(t *testing.T) {
	record, err := Parse("Acrobatics +2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if bonus, ok := record.Modifier("ACROBATICS"); !ok || bonus != 2 {
		t.Errorf("Modifier(ACROBATICS) = %d (%v), want 2", bonus, ok)
	}
}
