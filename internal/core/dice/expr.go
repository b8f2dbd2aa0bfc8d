package dice

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidExpr indicates a dice expression could not be parsed.
var ErrInvalidExpr = errors.New("invalid dice expression")

// exprPattern matches expressions such as "2d6", "1d8+2", or "d12-1".
var exprPattern = regexp.MustCompile(`^(\d*)[dD](\d+)([+-]\d+)?$`)

// Expr is a parsed dice expression of the form NdS+B.
type Expr struct {
	Count int
	Sides int
	Bonus int
}

// ExprResult captures the outcome of rolling a dice expression.
type ExprResult struct {
	Faces []int
	Bonus int
	Total int
}

// ParseExpr parses a dice expression like "2d6+3". The count defaults to 1
// when omitted; the bonus may be negative.
func ParseExpr(raw string) (Expr, error) {
	trimmed := strings.TrimSpace(raw)
	matches := exprPattern.FindStringSubmatch(trimmed)
	if matches == nil {
		return Expr{}, fmt.Errorf("%w: %q", ErrInvalidExpr, raw)
	}

	count := 1
	if matches[1] != "" {
		parsed, err := strconv.Atoi(matches[1])
		if err != nil || parsed <= 0 {
			return Expr{}, fmt.Errorf("%w: %q", ErrInvalidExpr, raw)
		}
		count = parsed
	}

	sides, err := strconv.Atoi(matches[2])
	if err != nil || sides <= 0 {
		return Expr{}, fmt.Errorf("%w: %q", ErrInvalidExpr, raw)
	}

	bonus := 0
	if matches[3] != "" {
		bonus, err = strconv.Atoi(matches[3])
		if err != nil {
			return Expr{}, fmt.Errorf("%w: %q", ErrInvalidExpr, raw)
		}
	}

	return Expr{Count: count, Sides: sides, Bonus: bonus}, nil
}

// String renders the expression in canonical NdS+B form.
func (e Expr) String() string {
	out := fmt.Sprintf("%dd%d", e.Count, e.Sides)
	if e.Bonus > 0 {
		out += fmt.Sprintf("+%d", e.Bonus)
	} else if e.Bonus < 0 {
		out += strconv.Itoa(e.Bonus)
	}
	return out
}

// Roll rolls the expression with the provided random source.
func (e Expr) Roll(rng *rand.Rand) (ExprResult, error) {
	result, err := RollWithRng(rng, []Spec{{Sides: e.Sides, Count: e.Count}})
	if err != nil {
		return ExprResult{}, err
	}
	return ExprResult{
		Faces: result.Rolls[0].Results,
		Bonus: e.Bonus,
		Total: result.Total + e.Bonus,
	}, nil
}
