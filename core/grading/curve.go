package grading

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
)

const (
	MinCurve = -50.0
	MaxCurve = 50.0
)

// ValidateCurve checks that a curve amount is within [MinCurve, MaxCurve].
func ValidateCurve(amount float64) error {
	if !(amount >= MinCurve && amount <= MaxCurve) {
		msg := fmt.Sprintf("curve must be between %g and %g percentage points", MinCurve, MaxCurve)
		return core.NewValidationError(errors.New(msg), core.FieldError{Field: "amount", Error: msg})
	}
	return nil
}

// AddCurve adds `amount` to the accumulated curve of the grade and recomputes its percentage and letter.
// Curves accumulate: adding 5 then 3 is the same as adding 8. Clamping is applied to the total, never stored:
// the total never goes below 0, and it goes above 100 only when the class allows extra credit.
func (og *OverallGrade) AddCurve(amount float64) error {
	if og.BasePercentage != nil {
		if base := *og.BasePercentage; math.IsNaN(base) || math.IsInf(base, 0) {
			return DataIntegrityError{Reason: fmt.Sprintf("overall grade %s has a corrupt base percentage", og.ID)}
		}
	}
	if math.IsNaN(og.Curve) || math.IsInf(og.Curve, 0) {
		return DataIntegrityError{Reason: fmt.Sprintf("overall grade %s has a corrupt curve", og.ID)}
	}
	og.Curve += amount
	og.recompute()
	return nil
}
