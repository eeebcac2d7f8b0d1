package grading

// letter bands, lower bound inclusive
var letterBands = []struct {
	min    float64
	letter string
}{
	{90, "A"},
	{80, "B"},
	{70, "C"},
	{60, "D"},
}

// LetterFor maps a percentage to its letter grade.
func LetterFor(pct float64) string {
	for _, b := range letterBands {
		if pct >= b.min {
			return b.letter
		}
	}
	return "F"
}

