package dice

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"
)

func TestRollDiceDeterministic(t *testing.T) {
	req := Request{
		Dice: []Spec{{Sides: 20, Count: 1}, {Sides: 6, Count: 2}},
		Seed: 42,
	}

	first, err := RollDice(req)
	if err != nil {
		t.Fatalf("first roll: %v", err)
	}
	second, err := RollDice(req)
	if err != nil {
		t.Fatalf("second roll: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("same seed produced different results: %+v vs %+v", first, second)
	}
}

func TestRollDiceRanges(t *testing.T) {
	for seed := int64(0); seed < 50; seed++ {
		result, err := RollDice(Request{Dice: []Spec{{Sides: 20, Count: 1}}, Seed: seed})
		if err != nil {
			t.Fatalf("roll with seed %d: %v", seed, err)
		}
		value := result.Rolls[0].Results[0]
		if value < 1 || value > 20 {
			t.Fatalf("d20 rolled %d with seed %d", value, seed)
		}
		if result.Total != value {
			t.Fatalf("total %d does not match single die %d", result.Total, value)
		}
	}
}

func TestRollDiceOrdering(t *testing.T) {
	result, err := RollDice(Request{
		Dice: []Spec{{Sides: 4, Count: 1}, {Sides: 8, Count: 3}},
		Seed: 7,
	})
	if err != nil {
		t.Fatalf("roll: %v", err)
	}
	if len(result.Rolls) != 2 {
		t.Fatalf("expected 2 roll entries, got %d", len(result.Rolls))
	}
	if result.Rolls[0].Sides != 4 || result.Rolls[1].Sides != 8 {
		t.Errorf("roll entries out of order: %+v", result.Rolls)
	}
	if len(result.Rolls[1].Results) != 3 {
		t.Errorf("expected 3 d8 results, got %d", len(result.Rolls[1].Results))
	}
}

func TestRollDiceErrors(t *testing.T) {
	tests := []struct {
		name    string
		request Request
		wantErr error
	}{
		{"no dice", Request{}, ErrMissingDice},
		{"zero sides", Request{Dice: []Spec{{Sides: 0, Count: 1}}}, ErrInvalidDiceSpec},
		{"zero count", Request{Dice: []Spec{{Sides: 6, Count: 0}}}, ErrInvalidDiceSpec},
		{"negative sides", Request{Dice: []Spec{{Sides: -6, Count: 1}}}, ErrInvalidDiceSpec},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RollDice(tt.request)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRollWithRng(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	result, err := RollWithRng(rng, []Spec{{Sides: 6, Count: 4}})
	if err != nil {
		t.Fatalf("roll: %v", err)
	}
	if result.Total < 4 || result.Total > 24 {
		t.Errorf("4d6 total = %d, want within [4,24]", result.Total)
	}
}
