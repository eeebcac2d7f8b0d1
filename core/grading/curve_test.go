package grading

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/gradebook/core"
)

func TestValidateCurve(t *testing.T) {
	tests := []struct {
		amount  float64
		wantErr bool
	}{
		{0, false},
		{5, false},
		{-50, false},
		{50, false},
		{50.01, true},
		{60, true},
		{-51, true},
		{math.NaN(), true},
		{math.Inf(1), true},
	}
	for _, tt := range tests {
		err := ValidateCurve(tt.amount)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateCurve(%v) error = %v, wantErr %v", tt.amount, err, tt.wantErr)
		}
		if err != nil && !core.IsValidationError(err) {
			t.Errorf("ValidateCurve(%v) error = %T, want a validation error", tt.amount, err)
		}
	}
}

func TestOverallGrade_AddCurve(t *testing.T) {
	og := ComposeOverall(GradeHeader{ID: "g"}, []CategoryGrade{categoryGrade("Tests", 100, float(80), false)}, Adjustments{}, defaultPolicy)

	require.NoError(t, og.AddCurve(5))
	require.NoError(t, og.AddCurve(3))
	assert.Equal(t, 8.0, og.Curve)
	assert.InDelta(t, 88, *og.Percentage, 1e-9)
	assert.Equal(t, "B", og.LetterGrade)

	// clamping is applied to the total, the curve is kept
	require.NoError(t, og.AddCurve(30))
	assert.Equal(t, 38.0, og.Curve)
	assert.Equal(t, 100.0, *og.Percentage)

	require.NoError(t, og.AddCurve(-30))
	assert.InDelta(t, 88, *og.Percentage, 1e-9)
	assert.InDelta(t, 80, *og.BasePercentage, 1e-9)
}

func TestOverallGrade_AddCurve_aboveHundred(t *testing.T) {
	tests := []struct {
		name    string
		allowEC bool
		want    float64
	}{
		{name: "no extra credit", want: 100},
		{name: "extra credit allowed", allowEC: true, want: 108},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cats := []CategoryGrade{categoryGrade("Tests", 100, float(98), tt.allowEC)}
			og := ComposeOverall(GradeHeader{ID: "g"}, cats, Adjustments{}, defaultPolicy)
			assert.Equal(t, tt.allowEC, og.AllowsAboveHundred)

			require.NoError(t, og.AddCurve(10))
			assert.Equal(t, 10.0, og.Curve)
			assert.InDelta(t, tt.want, *og.Percentage, 1e-9)
			assert.Equal(t, "A", og.LetterGrade)

			// the floor holds either way
			require.NoError(t, og.AddCurve(-50))
			require.NoError(t, og.AddCurve(-50))
			require.NoError(t, og.AddCurve(-50))
			assert.Equal(t, 0.0, *og.Percentage)
		})
	}
}

func TestOverallGrade_AddCurve_undefined(t *testing.T) {
	og := ComposeOverall(GradeHeader{ID: "g"}, nil, Adjustments{}, defaultPolicy)

	require.NoError(t, og.AddCurve(5))
	assert.Equal(t, 5.0, og.Curve)
	assert.Nil(t, og.Percentage)
	assert.Equal(t, "", og.LetterGrade)
}

func TestOverallGrade_AddCurve_corrupt(t *testing.T) {
	nan := math.NaN()
	og := OverallGrade{GradeHeader: GradeHeader{ID: "g"}, BasePercentage: &nan}

	err := og.AddCurve(5)
	require.Error(t, err)
	assert.IsType(t, DataIntegrityError{}, err)
	assert.Equal(t, 0.0, og.Curve)
}
