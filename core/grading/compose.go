package grading

import (
	"math"
	"sort"
	"strings"
)

type (
	// Policy holds the class-independent knobs of the grading policy.
	Policy struct {
		// ExtraCreditCeiling caps the flat extra credit of classes where no active category allows extra credit.
		ExtraCreditCeiling float64
	}

	// Adjustments are the per-student inputs of the composer that do not come from scores.
	Adjustments struct {
		ExtraCredit float64
		Curve       float64
	}
)

// ComposeOverall combines category grades into the overall grade: a weighted mean renormalized over the
// categories that have scores, plus flat extra credit, plus the stored curve.
// When no category has scores the overall percentage is undefined (nil), which is distinct from 0%.
func ComposeOverall(hdr GradeHeader, cats []CategoryGrade, adj Adjustments, policy Policy) OverallGrade {
	og := OverallGrade{GradeHeader: hdr, Curve: adj.Curve}

	var weightedSum, totalWeight float64
	for _, cg := range cats {
		if cg.Percentage == nil {
			continue
		}
		og.PointsEarned += cg.PointsEarned
		og.PointsPossible += cg.PointsPossible
		if cg.GradeDate.After(og.GradeDate) {
			og.GradeDate = cg.GradeDate
		}
		if cg.AllowExtraCredit {
			og.AllowsAboveHundred = true
		}
		weightedSum += *cg.Percentage * cg.Weight
		totalWeight += cg.Weight
	}

	og.ExtraCredit = math.Max(0, adj.ExtraCredit)
	if !og.AllowsAboveHundred && og.ExtraCredit > policy.ExtraCreditCeiling {
		og.ExtraCredit = math.Max(0, policy.ExtraCreditCeiling)
	}

	if totalWeight > 0 {
		base := weightedSum/totalWeight + og.ExtraCredit
		og.BasePercentage = &base
	}
	og.recompute()
	return og
}

// recompute derives the percentage and letter from the base percentage and the accumulated curve.
func (og *OverallGrade) recompute() {
	if og.BasePercentage == nil {
		og.Percentage = nil
		og.LetterGrade = ""
		return
	}
	pct := clampPercentage(*og.BasePercentage+og.Curve, og.AllowsAboveHundred)
	og.Percentage = &pct
	og.LetterGrade = LetterFor(pct)
}

func clampPercentage(pct float64, allowAboveHundred bool) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 && !allowAboveHundred {
		return 100
	}
	return pct
}

// ComputeStudentGrades runs the two-phase pipeline for one student against one category set snapshot:
// every active category is aggregated first, then the overall grade is composed from the complete set.
// Scores whose category is not in the snapshot are excluded and reported as issues.
func ComputeStudentGrades(studentID string, set CategorySet, scores []RawScore, adj Adjustments, policy Policy) StudentGrades {
	cats := set.Active()

	byCategory := make(map[string][]RawScore, len(cats))
	for _, c := range cats {
		byCategory[c.ID] = nil
	}

	sorted := make([]RawScore, len(scores))
	copy(sorted, scores)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var sg StudentGrades
	for _, s := range sorted {
		if _, ok := byCategory[s.CategoryID]; !ok {
			reason := "category not in the active category set"
			if s.CategoryID == UncategorizedID {
				reason = "category was removed"
			}
			sg.Issues = append(sg.Issues, DataIntegrityError{
				ScoreID:      s.ID,
				AssignmentID: s.AssignmentID,
				CategoryID:   s.CategoryID,
				Reason:       reason,
			})
			continue
		}
		byCategory[s.CategoryID] = append(byCategory[s.CategoryID], s)
	}

	// phase 1: categories
	sg.Categories = make([]CategoryGrade, 0, len(cats))
	sg.Assignments = make([]AssignmentGrade, 0, len(sorted))
	for _, c := range cats {
		cg, ags, issues := AggregateCategory(studentID, c, byCategory[c.ID])
		sg.Categories = append(sg.Categories, cg)
		sg.Assignments = append(sg.Assignments, ags...)
		sg.Issues = append(sg.Issues, issues...)
	}

	// phase 2: overall
	hdr := newGradeHeader(KindOverall, studentID, set.ClassID, set.ClassID, set.Version)
	sg.Overall = ComposeOverall(hdr, sg.Categories, adj, policy)
	return sg
}

func sortCategories(cats []GradeCategory) {
	sort.SliceStable(cats, func(i, j int) bool {
		if cats[i].SortOrder != cats[j].SortOrder {
			return cats[i].SortOrder < cats[j].SortOrder
		}
		return strings.ToLower(cats[i].Name) < strings.ToLower(cats[j].Name)
	})
}
