package grading

import (
	"math"
	"sort"
	"strings"
)

// LatePenalty returns the percentage points deducted from a score of the category for lateness:
// days late × per-day penalty, capped by the category's max penalty.
func LatePenalty(cat GradeCategory, s RawScore) float64 {
	days := s.lateDays()
	if days <= 0 || cat.LatePenaltyPerDay == nil {
		return 0
	}
	penalty := float64(days) * *cat.LatePenaltyPerDay
	if cat.MaxLatePenalty != nil && penalty > *cat.MaxLatePenalty {
		penalty = *cat.MaxLatePenalty
	}
	return penalty
}

// AggregateCategory reduces a student's scores within one category to a category grade.
// Each score is converted to a percentage, late penalties are deducted (never below 0), the lowest
// `DropLowest` scores are dropped (always keeping at least one) and the rest are averaged.
// The average is capped at 100 unless the category allows extra credit.
// A category without scores yields an undefined percentage, not 0.
// Scores that cannot be converted to a percentage are excluded and returned as integrity issues.
func AggregateCategory(studentID string, cat GradeCategory, scores []RawScore) (CategoryGrade, []AssignmentGrade, []DataIntegrityError) {
	cg := CategoryGrade{
		GradeHeader:      newGradeHeader(KindCategory, studentID, cat.ClassID, cat.ID, cat.Version),
		CategoryID:       cat.ID,
		CategoryName:     cat.Name,
		Weight:           cat.Weight,
		AllowExtraCredit: cat.AllowExtraCredit,
	}

	var issues []DataIntegrityError
	assignments := make([]AssignmentGrade, 0, len(scores))
	for _, s := range scores {
		if !(s.PointsPossible > 0) || s.PointsEarned < 0 || math.IsNaN(s.PointsEarned) || math.IsInf(s.PointsEarned, 0) {
			issues = append(issues, DataIntegrityError{
				ScoreID:      s.ID,
				AssignmentID: s.AssignmentID,
				CategoryID:   s.CategoryID,
				Reason:       "invalid points",
			})
			continue
		}

		raw := s.PointsEarned / s.PointsPossible * 100
		penalty := LatePenalty(cat, s)
		ag := AssignmentGrade{
			GradeHeader:     newGradeHeader(KindAssignment, studentID, cat.ClassID, s.ID, cat.Version),
			ScoreID:         s.ID,
			AssignmentID:    s.AssignmentID,
			CategoryID:      cat.ID,
			PointsEarned:    s.PointsEarned,
			PointsPossible:  s.PointsPossible,
			Percentage:      math.Max(0, raw-penalty),
			LatePenalty:     penalty,
			TeacherComments: s.TeacherComments,
		}
		ag.GradeDate = s.GradedAt
		assignments = append(assignments, ag)
	}

	n := len(assignments)
	if n == 0 {
		return cg, assignments, issues
	}

	// lowest first; ties resolved by assignment then score ID so the same inputs drop the same scores
	sort.SliceStable(assignments, func(i, j int) bool {
		a, b := assignments[i], assignments[j]
		if a.Percentage != b.Percentage {
			return a.Percentage < b.Percentage
		}
		if a.AssignmentID != b.AssignmentID {
			return a.AssignmentID < b.AssignmentID
		}
		return a.ScoreID < b.ScoreID
	})

	drop := cat.DropLowest
	if drop > n-1 {
		drop = n - 1
	}
	if drop < 0 {
		drop = 0
	}

	var sum float64
	for i := range assignments {
		ag := &assignments[i]
		if ag.GradeDate.After(cg.GradeDate) {
			cg.GradeDate = ag.GradeDate
		}
		if i < drop {
			ag.IsDropped = true
			cg.Dropped++
			continue
		}
		sum += ag.Percentage
		cg.PointsEarned += ag.PointsEarned
		cg.PointsPossible += ag.PointsPossible
		cg.Counted++
	}

	avg := sum / float64(cg.Counted)
	if !cat.AllowExtraCredit && avg > 100 {
		avg = 100
	}
	weighted := avg * cat.Weight / 100
	cg.Percentage = &avg
	cg.WeightedScore = &weighted
	cg.LetterGrade = LetterFor(avg)

	// display order
	sort.SliceStable(assignments, func(i, j int) bool {
		return strings.Compare(assignments[i].AssignmentID, assignments[j].AssignmentID) < 0
	})
	return cg, assignments, issues
}
