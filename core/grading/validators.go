package grading

import (
	"fmt"
	"math"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/gradebook/core"
)

const (
	weightTolerance = 0.01
	floatEpsilon    = 1e-9
)

var (
	weightSumTag  = "weightsum"
	weightSumText = "category weights must sum to 100, got {1}"

	uniqueNameTag  = "uniquename"
	uniqueNameText = "category name {1} is used more than once"
)

// InitValidators registers the grading validators; core.InitValidators must run first.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(saveCategoriesStructValidation, SaveCategories{})
	core.RegisterCustomTranslation(validate, translator, weightSumTag, weightSumText)
	core.RegisterCustomTranslation(validate, translator, uniqueNameTag, uniqueNameText)
}

// saveCategoriesStructValidation enforces the set-level rules: unique names and, for a non-empty set,
// weights summing to 100 (± weightTolerance).
func saveCategoriesStructValidation(sl validator.StructLevel) {
	data := sl.Current().Interface().(SaveCategories)
	if len(data.Categories) == 0 {
		return
	}

	seen := make(map[string]bool, len(data.Categories))
	for i, c := range data.Categories {
		key := core.CleanString(c.Name, true)
		if key == "" {
			continue // reported by `notblank`
		}
		if seen[key] {
			sl.ReportError(c.Name, fmt.Sprintf("categories[%d].name", i), "Name", uniqueNameTag, fmt.Sprintf("%q", c.Name))
		}
		seen[key] = true
	}

	if total, ok := weightsSumTo100(data.Categories); !ok {
		sl.ReportError(data.Categories, "categories", "Categories", weightSumTag, describeWeights(total, data.Categories))
	}
}

func weightsSumTo100(cats []NewCategory) (float64, bool) {
	var total float64
	for _, c := range cats {
		total += c.Weight
	}
	return total, math.Abs(total-100) <= weightTolerance+floatEpsilon
}

// describeWeights renders e.g. `90.00 (Tests=40, Homework=50)`.
func describeWeights(total float64, cats []NewCategory) string {
	parts := make([]string, 0, len(cats))
	for _, c := range cats {
		parts = append(parts, fmt.Sprintf("%s=%g", c.Name, c.Weight))
	}
	return fmt.Sprintf("%.2f (%s)", total, strings.Join(parts, ", "))
}
