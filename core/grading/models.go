package grading

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/trezcool/gradebook/core"
)

// UncategorizedID is the sentinel category of scores whose category was removed from the active set.
// Scores attached to it are never aggregated; they are reported as integrity issues until reassigned.
const UncategorizedID = "uncategorized"

type GradeKind string

const (
	KindAssignment GradeKind = "assignment"
	KindCategory   GradeKind = "category"
	KindOverall    GradeKind = "overall"
)

// gradeNamespace seeds the deterministic IDs of computed grades.
var gradeNamespace = uuid.MustParse("5b0d8f9e-6a1c-4d3e-9f7a-2c4b8e1d0a63")

type (
	Class struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		TeacherID string `json:"teacher_id"`
	}

	// Student is a roster entry of a class.
	Student struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}

	GradeCategory struct {
		ID                string     `json:"id"`
		ClassID           string     `json:"class_id"`
		Version           int        `json:"version"`
		Name              string     `json:"name"`
		Weight            float64    `json:"weight"`
		DropLowest        int        `json:"drop_lowest"`
		LatePenaltyPerDay *float64   `json:"late_penalty_per_day"`
		MaxLatePenalty    *float64   `json:"max_late_penalty"`
		AllowExtraCredit  bool       `json:"allow_extra_credit"`
		SortOrder         int        `json:"sort_order"`
		CreatedAt         time.Time  `json:"created_at"`
		DeletedAt         *time.Time `json:"deleted_at,omitempty"`
	}

	// CategorySet is one immutable version of a class's category rule table.
	// Version 0 with no categories means the class never saved one.
	CategorySet struct {
		ClassID    string          `json:"class_id"`
		Version    int             `json:"version"`
		Categories []GradeCategory `json:"categories"`
		CreatedAt  time.Time       `json:"created_at"`
	}

	RawScore struct {
		ID              string     `json:"id"`
		StudentID       string     `json:"student_id"`
		ClassID         string     `json:"class_id"`
		AssignmentID    string     `json:"assignment_id"`
		AssignmentTitle string     `json:"assignment_title"`
		CategoryID      string     `json:"category_id"`
		PointsEarned    float64    `json:"points_earned"`
		PointsPossible  float64    `json:"points_possible"`
		SubmittedAt     time.Time  `json:"submitted_at"`
		DueAt           *time.Time `json:"due_at"`
		IsLate          bool       `json:"is_late"`
		DaysLate        int        `json:"days_late"`
		GradedAt        time.Time  `json:"graded_at"`
		TeacherComments string     `json:"teacher_comments"`
	}

	// ExtraCredit holds the flat points a teacher granted a student on top of the weighted mean.
	ExtraCredit struct {
		ClassID   string  `json:"class_id"`
		StudentID string  `json:"student_id"`
		Points    float64 `json:"points"`
		Reason    string  `json:"reason"`
	}
)

// Active returns the categories of the set that are not soft-deleted, ordered for display.
func (s CategorySet) Active() []GradeCategory {
	cats := make([]GradeCategory, 0, len(s.Categories))
	for _, c := range s.Categories {
		if c.DeletedAt == nil {
			cats = append(cats, c)
		}
	}
	sortCategories(cats)
	return cats
}

// lateDays returns the number of calendar days a late score was submitted after its due date.
func (s RawScore) lateDays() int {
	if !s.IsLate {
		return 0
	}
	if s.DaysLate > 0 {
		return s.DaysLate
	}
	if s.DueAt == nil || s.SubmittedAt.IsZero() || !s.SubmittedAt.After(*s.DueAt) {
		return 0
	}
	due := truncateDay(*s.DueAt)
	sub := truncateDay(s.SubmittedAt)
	days := int(sub.Sub(due).Hours() / 24)
	if days < 1 {
		days = 1 // late on the due date itself
	}
	return days
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Grades

type (
	// Grade is a computed, persisted grade snapshot. It is one of AssignmentGrade, CategoryGrade or OverallGrade.
	Grade interface {
		Kind() GradeKind
		Header() GradeHeader
	}

	GradeHeader struct {
		ID        string    `json:"id"`
		StudentID string    `json:"student_id"`
		ClassID   string    `json:"class_id"`
		Version   int       `json:"version"` // CategorySet version the grade was computed under
		GradeDate time.Time `json:"grade_date"`
	}

	AssignmentGrade struct {
		GradeHeader
		ScoreID         string  `json:"score_id"`
		AssignmentID    string  `json:"assignment_id"`
		CategoryID      string  `json:"category_id"`
		PointsEarned    float64 `json:"points_earned"`
		PointsPossible  float64 `json:"points_possible"`
		Percentage      float64 `json:"percentage"`
		LatePenalty     float64 `json:"late_penalty"`
		IsDropped       bool    `json:"is_dropped"`
		TeacherComments string  `json:"teacher_comments"`
	}

	CategoryGrade struct {
		GradeHeader
		CategoryID       string   `json:"category_id"`
		CategoryName     string   `json:"category_name"`
		Weight           float64  `json:"weight"`
		AllowExtraCredit bool     `json:"allow_extra_credit"`
		PointsEarned     float64  `json:"points_earned"`
		PointsPossible   float64  `json:"points_possible"`
		Percentage       *float64 `json:"percentage"` // nil when the category has no scores yet
		WeightedScore    *float64 `json:"weighted_score"`
		LetterGrade      string   `json:"letter_grade"`
		Counted          int      `json:"counted"`
		Dropped          int      `json:"dropped"`
	}

	OverallGrade struct {
		GradeHeader
		PointsEarned       float64  `json:"points_earned"`
		PointsPossible     float64  `json:"points_possible"`
		BasePercentage     *float64 `json:"base_percentage"` // weighted mean + extra credit, before curve
		Percentage         *float64 `json:"percentage"`      // nil when no category has scores yet
		ExtraCredit        float64  `json:"extra_credit"`
		Curve              float64  `json:"curve"`
		LetterGrade        string   `json:"letter_grade"`
		AllowsAboveHundred bool     `json:"allows_above_hundred"`
	}

	// StudentGrades is the result of one recalculation pass for one student in one class.
	StudentGrades struct {
		Overall     OverallGrade         `json:"overall"`
		Categories  []CategoryGrade      `json:"categories"`
		Assignments []AssignmentGrade    `json:"assignments"`
		Issues      []DataIntegrityError `json:"issues,omitempty"`
	}
)

func (h GradeHeader) Header() GradeHeader { return h }

func (AssignmentGrade) Kind() GradeKind { return KindAssignment }
func (CategoryGrade) Kind() GradeKind   { return KindCategory }
func (OverallGrade) Kind() GradeKind    { return KindOverall }

// All returns every grade of the pass: assignments first, then categories, then the overall grade.
func (sg StudentGrades) All() []Grade {
	grades := make([]Grade, 0, len(sg.Assignments)+len(sg.Categories)+1)
	for _, g := range sg.Assignments {
		grades = append(grades, g)
	}
	for _, g := range sg.Categories {
		grades = append(grades, g)
	}
	return append(grades, sg.Overall)
}

func newGradeHeader(kind GradeKind, studentID, classID, subject string, version int) GradeHeader {
	key := fmt.Sprintf("%s/%s/%s/%s", classID, studentID, kind, subject)
	return GradeHeader{
		ID:        uuid.NewSHA1(gradeNamespace, []byte(key)).String(),
		StudentID: studentID,
		ClassID:   classID,
		Version:   version,
	}
}

// DataIntegrityError flags a raw score that was excluded from aggregation.
type DataIntegrityError struct {
	ScoreID      string `json:"score_id"`
	AssignmentID string `json:"assignment_id"`
	CategoryID   string `json:"category_id"`
	Reason       string `json:"reason"`
}

func (err DataIntegrityError) Error() string {
	if err.ScoreID == "" {
		return err.Reason
	}
	return fmt.Sprintf("score %s (assignment %s): %s", err.ScoreID, err.AssignmentID, err.Reason)
}

// Inputs

type (
	NewCategory struct {
		Name              string   `json:"name" validate:"notblank,max=100"`
		Weight            float64  `json:"weight" validate:"gte=0,lte=100"`
		DropLowest        int      `json:"drop_lowest" validate:"gte=0"`
		LatePenaltyPerDay *float64 `json:"late_penalty_per_day" validate:"omitempty,gte=0,lte=100"`
		MaxLatePenalty    *float64 `json:"max_late_penalty" validate:"omitempty,gte=0,lte=100"`
		AllowExtraCredit  bool     `json:"allow_extra_credit"`
		SortOrder         int      `json:"sort_order"`
	}

	SaveCategories struct {
		Categories []NewCategory `json:"categories" validate:"max=50,dive"`
	}

	NewScore struct {
		StudentID       string     `json:"student_id" validate:"notblank"`
		ClassID         string     `json:"class_id" validate:"notblank"`
		AssignmentID    string     `json:"assignment_id" validate:"notblank"`
		AssignmentTitle string     `json:"assignment_title"`
		CategoryID      string     `json:"category_id" validate:"notblank"`
		PointsEarned    float64    `json:"points_earned" validate:"gte=0"`
		PointsPossible  float64    `json:"points_possible" validate:"gt=0"`
		SubmittedAt     time.Time  `json:"submitted_at" validate:"required"`
		DueAt           *time.Time `json:"due_at"`
		IsLate          bool       `json:"is_late"`
		DaysLate        int        `json:"days_late" validate:"gte=0"`
		TeacherComments string     `json:"teacher_comments" validate:"max=2000"`
	}

	NewExtraCredit struct {
		Points float64 `json:"points" validate:"gte=0,lte=100"`
		Reason string  `json:"reason" validate:"max=500"`
	}

	CurveRequest struct {
		Amount float64 `json:"amount"`
	}
)

func (sc *SaveCategories) clean() {
	for i := range sc.Categories {
		sc.Categories[i].Name = core.CleanString(sc.Categories[i].Name)
	}
}

// Validate cleans and validates the category set; set-level rules are registered by InitValidators.
func (sc *SaveCategories) Validate(validate *validator.Validate) error {
	sc.clean()
	return validate.Struct(sc)
}

func (ns *NewScore) Validate(validate *validator.Validate) error {
	ns.StudentID = core.CleanString(ns.StudentID)
	ns.ClassID = core.CleanString(ns.ClassID)
	ns.AssignmentID = core.CleanString(ns.AssignmentID)
	ns.AssignmentTitle = core.CleanString(ns.AssignmentTitle)
	ns.CategoryID = core.CleanString(ns.CategoryID)
	return validate.Struct(ns)
}

func (nec *NewExtraCredit) Validate(validate *validator.Validate) error {
	nec.Reason = core.CleanString(nec.Reason)
	return validate.Struct(nec)
}
