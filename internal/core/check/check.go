// Package check compares roll totals against difficulty values.
package check

// MeetsDifficulty reports whether total clears difficulty. Ties go to
// the roller.
func MeetsDifficulty(total, difficulty int) bool {
	return total >= difficulty
}

// Margin is how far the total landed above or below the difficulty.
func Margin(total, difficulty int) int {
	return total - difficulty
}

// Result pairs the pass/fail verdict with its margin.
type Result struct {
	Success bool
	Margin  int
}

// Check evaluates a total against a difficulty in one call.
func Check(total, difficulty int) Result {
	return Result{
		Success: MeetsDifficulty(total, difficulty),
		Margin:  Margin(total, difficulty),
	}
}
