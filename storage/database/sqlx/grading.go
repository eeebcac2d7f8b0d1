package sqlxrepos

import (
	"context"
	"database/sql"
	"math"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/grading"
)

type gradingRepository struct {
	db   core.DB
	exec core.DBExecutor // db, or the running transaction
}

var _ grading.Repository = (*gradingRepository)(nil) // interface compliance check

func NewGradingRepository(db core.DB) *gradingRepository {
	return &gradingRepository{db: db, exec: db}
}

// trapNoRowsErr maps "no rows" errors to `notFound`
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func (repo *gradingRepository) RunInTx(ctx context.Context, fn func(tx grading.Repository) error) error {
	if _, ok := repo.exec.(core.DBTransactor); ok {
		return fn(repo)
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }() // no-op once committed

	if err = fn(&gradingRepository{db: repo.db, exec: tx}); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func (repo *gradingRepository) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return repo.exec.GetContext(ctx, dest, repo.exec.Rebind(query), args...)
}

func (repo *gradingRepository) selectAll(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return repo.exec.SelectContext(ctx, dest, repo.exec.Rebind(query), args...)
}

func (repo *gradingRepository) execute(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return repo.exec.ExecContext(ctx, repo.exec.Rebind(query), args...)
}

// Classes & rosters

type classRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	TeacherID string `db:"teacher_id"`
}

type studentRow struct {
	ID    string `db:"student_id"`
	Name  string `db:"student_name"`
	Email string `db:"student_email"`
}

func (r studentRow) model() grading.Student {
	return grading.Student{ID: r.ID, Name: r.Name, Email: r.Email}
}

func (repo *gradingRepository) GetClass(ctx context.Context, classID string) (grading.Class, error) {
	var row classRow
	if err := repo.get(ctx, &row, `SELECT id, name, teacher_id FROM class WHERE id = ?`, classID); err != nil {
		return grading.Class{}, trapNoRowsErr(err, grading.ErrClassNotFound, "selecting class")
	}
	return grading.Class{ID: row.ID, Name: row.Name, TeacherID: row.TeacherID}, nil
}

func (repo *gradingRepository) ListRoster(ctx context.Context, classID string) ([]grading.Student, error) {
	var rows []studentRow
	q := `SELECT student_id, student_name, student_email FROM enrollment WHERE class_id = ? ORDER BY student_id`
	if err := repo.selectAll(ctx, &rows, q, classID); err != nil {
		return nil, errors.Wrap(err, "selecting roster")
	}
	students := make([]grading.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.model())
	}
	return students, nil
}

func (repo *gradingRepository) GetEnrollment(ctx context.Context, classID, studentID string) (grading.Student, error) {
	var row studentRow
	q := `SELECT student_id, student_name, student_email FROM enrollment WHERE class_id = ? AND student_id = ?`
	if err := repo.get(ctx, &row, q, classID, studentID); err != nil {
		return grading.Student{}, trapNoRowsErr(err, grading.ErrStudentNotEnrolled, "selecting enrollment")
	}
	return row.model(), nil
}

// Row locks

// sqliteDriver is the sqlx driver name of SQLite databases. SQLite has no row locks; its single connection
// already serializes transactions.
const sqliteDriver = "sqlite3"

func (repo *gradingRepository) lockClause(mode grading.LockMode) string {
	if repo.exec.DriverName() == sqliteDriver {
		return ""
	}
	if mode == grading.LockExclusive {
		return ` FOR UPDATE`
	}
	return ` FOR SHARE`
}

func (repo *gradingRepository) LockClass(ctx context.Context, classID string, mode grading.LockMode) error {
	var id string
	err := repo.get(ctx, &id, `SELECT id FROM class WHERE id = ?`+repo.lockClause(mode), classID)
	return trapNoRowsErr(err, grading.ErrClassNotFound, "locking class")
}

func (repo *gradingRepository) LockEnrollment(ctx context.Context, classID, studentID string) error {
	var id string
	q := `SELECT student_id FROM enrollment WHERE class_id = ? AND student_id = ?` + repo.lockClause(grading.LockExclusive)
	err := repo.get(ctx, &id, q, classID, studentID)
	return trapNoRowsErr(err, grading.ErrStudentNotEnrolled, "locking enrollment")
}

// CreateClass stores a class. Classes are owned by the school app; it is used to seed local databases and tests.
func (repo *gradingRepository) CreateClass(ctx context.Context, class grading.Class) error {
	_, err := repo.execute(ctx, `INSERT INTO class (id, name, teacher_id) VALUES (?, ?, ?)`, class.ID, class.Name, class.TeacherID)
	return errors.Wrap(err, "inserting class")
}

// Enroll adds students to the roster of a class.
func (repo *gradingRepository) Enroll(ctx context.Context, classID string, students ...grading.Student) error {
	q := `INSERT INTO enrollment (class_id, student_id, student_name, student_email) VALUES (?, ?, ?, ?)
		ON CONFLICT (class_id, student_id) DO UPDATE SET student_name = excluded.student_name, student_email = excluded.student_email`
	for _, st := range students {
		if _, err := repo.execute(ctx, q, classID, st.ID, st.Name, st.Email); err != nil {
			return errors.Wrap(err, "inserting enrollment")
		}
	}
	return nil
}

// Category sets

type categoryRow struct {
	ID                string       `db:"id"`
	ClassID           string       `db:"class_id"`
	Version           int          `db:"version"`
	Name              string       `db:"name"`
	Weight            float64      `db:"weight"`
	DropLowest        int          `db:"drop_lowest"`
	LatePenaltyPerDay null.Float64 `db:"late_penalty_per_day"`
	MaxLatePenalty    null.Float64 `db:"max_late_penalty"`
	AllowExtraCredit  bool         `db:"allow_extra_credit"`
	SortOrder         int          `db:"sort_order"`
	CreatedAt         time.Time    `db:"created_at"`
	DeletedAt         null.Time    `db:"deleted_at"`
}

func (r categoryRow) model() grading.GradeCategory {
	return grading.GradeCategory{
		ID:                r.ID,
		ClassID:           r.ClassID,
		Version:           r.Version,
		Name:              r.Name,
		Weight:            r.Weight,
		DropLowest:        r.DropLowest,
		LatePenaltyPerDay: r.LatePenaltyPerDay.Ptr(),
		MaxLatePenalty:    r.MaxLatePenalty.Ptr(),
		AllowExtraCredit:  r.AllowExtraCredit,
		SortOrder:         r.SortOrder,
		CreatedAt:         r.CreatedAt.UTC(),
		DeletedAt:         utcPtr(r.DeletedAt.Ptr()),
	}
}

func (repo *gradingRepository) GetCategorySet(ctx context.Context, classID string) (grading.CategorySet, error) {
	set := grading.CategorySet{ClassID: classID, Categories: make([]grading.GradeCategory, 0)}

	var head struct {
		Version   int       `db:"version"`
		CreatedAt time.Time `db:"created_at"`
	}
	q := `SELECT version, created_at FROM category_set WHERE class_id = ? ORDER BY version DESC LIMIT 1`
	if err := repo.get(ctx, &head, q, classID); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return set, nil
		}
		return grading.CategorySet{}, errors.Wrap(err, "selecting category set")
	}
	set.Version = head.Version
	set.CreatedAt = head.CreatedAt.UTC()

	var rows []categoryRow
	q = `SELECT * FROM grade_category WHERE class_id = ? AND version = ? ORDER BY sort_order, name`
	if err := repo.selectAll(ctx, &rows, q, classID, set.Version); err != nil {
		return grading.CategorySet{}, errors.Wrap(err, "selecting categories")
	}
	for _, r := range rows {
		set.Categories = append(set.Categories, r.model())
	}
	return set, nil
}

func (repo *gradingRepository) SaveCategorySet(ctx context.Context, set grading.CategorySet, removed []string) error {
	return repo.RunInTx(ctx, func(tx grading.Repository) error {
		txRepo := tx.(*gradingRepository)

		q := `UPDATE grade_category SET deleted_at = ? WHERE class_id = ? AND deleted_at IS NULL`
		if _, err := txRepo.execute(ctx, q, set.CreatedAt, set.ClassID); err != nil {
			return errors.Wrap(err, "superseding categories")
		}

		q = `INSERT INTO category_set (class_id, version, created_at) VALUES (?, ?, ?)`
		if _, err := txRepo.execute(ctx, q, set.ClassID, set.Version, set.CreatedAt); err != nil {
			return errors.Wrap(err, "inserting category set")
		}

		for _, c := range set.Categories {
			q = `INSERT INTO category (id, class_id) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`
			if _, err := txRepo.execute(ctx, q, c.ID, c.ClassID); err != nil {
				return errors.Wrap(err, "inserting category identity")
			}
			q = `INSERT INTO grade_category (id, class_id, version, name, weight, drop_lowest, late_penalty_per_day,
				max_late_penalty, allow_extra_credit, sort_order, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
			_, err := txRepo.execute(ctx, q,
				c.ID, c.ClassID, c.Version, c.Name, c.Weight, c.DropLowest, null.Float64FromPtr(c.LatePenaltyPerDay),
				null.Float64FromPtr(c.MaxLatePenalty), c.AllowExtraCredit, c.SortOrder, c.CreatedAt)
			if err != nil {
				return errors.Wrap(err, "inserting category")
			}
		}

		if len(removed) == 0 {
			return nil
		}
		q, args, err := sqlx.In(
			`UPDATE raw_score SET category_id = ? WHERE class_id = ? AND category_id IN (?)`,
			grading.UncategorizedID, set.ClassID, removed)
		if err != nil {
			return errors.Wrap(err, "building orphan query")
		}
		_, err = txRepo.execute(ctx, q, args...)
		return errors.Wrap(err, "orphaning scores")
	})
}

func (repo *gradingRepository) CountScoredAssignments(ctx context.Context, classID string) (map[string]int, error) {
	var rows []struct {
		CategoryID string `db:"category_id"`
		Count      int    `db:"n"`
	}
	q := `SELECT category_id, COUNT(DISTINCT assignment_id) AS n FROM raw_score WHERE class_id = ? GROUP BY category_id`
	if err := repo.selectAll(ctx, &rows, q, classID); err != nil {
		return nil, errors.Wrap(err, "counting scored assignments")
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.CategoryID] = r.Count
	}
	return counts, nil
}

// Scores

type scoreRow struct {
	ID              string    `db:"id"`
	StudentID       string    `db:"student_id"`
	ClassID         string    `db:"class_id"`
	AssignmentID    string    `db:"assignment_id"`
	AssignmentTitle string    `db:"assignment_title"`
	CategoryID      string    `db:"category_id"`
	PointsEarned    float64   `db:"points_earned"`
	PointsPossible  float64   `db:"points_possible"`
	SubmittedAt     time.Time `db:"submitted_at"`
	DueAt           null.Time `db:"due_at"`
	IsLate          bool      `db:"is_late"`
	DaysLate        int       `db:"days_late"`
	GradedAt        time.Time `db:"graded_at"`
	TeacherComments string    `db:"teacher_comments"`
}

func (r scoreRow) model() grading.RawScore {
	return grading.RawScore{
		ID:              r.ID,
		StudentID:       r.StudentID,
		ClassID:         r.ClassID,
		AssignmentID:    r.AssignmentID,
		AssignmentTitle: r.AssignmentTitle,
		CategoryID:      r.CategoryID,
		PointsEarned:    r.PointsEarned,
		PointsPossible:  r.PointsPossible,
		SubmittedAt:     r.SubmittedAt.UTC(),
		DueAt:           utcPtr(r.DueAt.Ptr()),
		IsLate:          r.IsLate,
		DaysLate:        r.DaysLate,
		GradedAt:        r.GradedAt.UTC(),
		TeacherComments: r.TeacherComments,
	}
}

func (repo *gradingRepository) queryScores(ctx context.Context, where string, args ...interface{}) ([]grading.RawScore, error) {
	var rows []scoreRow
	if err := repo.selectAll(ctx, &rows, `SELECT * FROM raw_score WHERE `+where+` ORDER BY id`, args...); err != nil {
		return nil, errors.Wrap(err, "selecting scores")
	}
	scores := make([]grading.RawScore, 0, len(rows))
	for _, r := range rows {
		scores = append(scores, r.model())
	}
	return scores, nil
}

func (repo *gradingRepository) QueryStudentScores(ctx context.Context, classID, studentID string) ([]grading.RawScore, error) {
	return repo.queryScores(ctx, `class_id = ? AND student_id = ?`, classID, studentID)
}

func (repo *gradingRepository) QueryOrphanedScores(ctx context.Context, classID string) ([]grading.RawScore, error) {
	return repo.queryScores(ctx, `class_id = ? AND category_id = ?`, classID, grading.UncategorizedID)
}

func (repo *gradingRepository) SaveScore(ctx context.Context, s grading.RawScore) (grading.RawScore, error) {
	q := `INSERT INTO raw_score (id, student_id, class_id, assignment_id, assignment_title, category_id, points_earned,
			points_possible, submitted_at, due_at, is_late, days_late, graded_at, teacher_comments)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (class_id, student_id, assignment_id) DO UPDATE SET
			assignment_title = excluded.assignment_title,
			category_id = excluded.category_id,
			points_earned = excluded.points_earned,
			points_possible = excluded.points_possible,
			submitted_at = excluded.submitted_at,
			due_at = excluded.due_at,
			is_late = excluded.is_late,
			days_late = excluded.days_late,
			graded_at = excluded.graded_at,
			teacher_comments = excluded.teacher_comments`
	_, err := repo.execute(ctx, q,
		s.ID, s.StudentID, s.ClassID, s.AssignmentID, s.AssignmentTitle, s.CategoryID, s.PointsEarned,
		s.PointsPossible, s.SubmittedAt, null.TimeFromPtr(s.DueAt), s.IsLate, s.DaysLate, s.GradedAt, s.TeacherComments)
	if err != nil {
		return grading.RawScore{}, errors.Wrap(err, "upserting score")
	}

	// an override keeps the ID of the first score
	q = `SELECT id FROM raw_score WHERE class_id = ? AND student_id = ? AND assignment_id = ?`
	if err = repo.get(ctx, &s.ID, q, s.ClassID, s.StudentID, s.AssignmentID); err != nil {
		return grading.RawScore{}, errors.Wrap(err, "selecting score ID")
	}
	return s, nil
}

// Extra credit

func (repo *gradingRepository) GetExtraCredit(ctx context.Context, classID, studentID string) (grading.ExtraCredit, error) {
	ec := grading.ExtraCredit{ClassID: classID, StudentID: studentID}
	var row struct {
		Points float64 `db:"points"`
		Reason string  `db:"reason"`
	}
	q := `SELECT points, reason FROM extra_credit WHERE class_id = ? AND student_id = ?`
	if err := repo.get(ctx, &row, q, classID, studentID); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return ec, nil
		}
		return grading.ExtraCredit{}, errors.Wrap(err, "selecting extra credit")
	}
	ec.Points = row.Points
	ec.Reason = row.Reason
	return ec, nil
}

func (repo *gradingRepository) SaveExtraCredit(ctx context.Context, ec grading.ExtraCredit) error {
	q := `INSERT INTO extra_credit (class_id, student_id, points, reason) VALUES (?, ?, ?, ?)
		ON CONFLICT (class_id, student_id) DO UPDATE SET points = excluded.points, reason = excluded.reason`
	_, err := repo.execute(ctx, q, ec.ClassID, ec.StudentID, ec.Points, ec.Reason)
	return errors.Wrap(err, "upserting extra credit")
}

// Grades

type gradeRow struct {
	ID                 string       `db:"id"`
	GradeType          string       `db:"grade_type"`
	StudentID          string       `db:"student_id"`
	ClassID            string       `db:"class_id"`
	Version            int          `db:"version"`
	Position           int          `db:"position"`
	GradeDate          null.Time    `db:"grade_date"`
	ScoreID            null.String  `db:"score_id"`
	AssignmentID       null.String  `db:"assignment_id"`
	CategoryID         null.String  `db:"category_id"`
	CategoryName       null.String  `db:"category_name"`
	Weight             null.Float64 `db:"weight"`
	AllowExtraCredit   bool         `db:"allow_extra_credit"`
	PointsEarned       float64      `db:"points_earned"`
	PointsPossible     float64      `db:"points_possible"`
	Percentage         null.Float64 `db:"percentage"`
	BasePercentage     null.Float64 `db:"base_percentage"`
	WeightedScore      null.Float64 `db:"weighted_score"`
	LetterGrade        string       `db:"letter_grade"`
	ExtraCredit        float64      `db:"extra_credit"`
	LatePenalty        float64      `db:"late_penalty"`
	Curve              float64      `db:"curve"`
	IsDropped          bool         `db:"is_dropped"`
	AllowsAboveHundred bool         `db:"allows_above_hundred"`
	Counted            int          `db:"counted"`
	Dropped            int          `db:"dropped"`
	TeacherComments    string       `db:"teacher_comments"`
}

const insertGradeQuery = `INSERT INTO grade (id, grade_type, student_id, class_id, version, position, grade_date,
	score_id, assignment_id, category_id, category_name, weight, allow_extra_credit, points_earned, points_possible,
	percentage, base_percentage, weighted_score, letter_grade, extra_credit, late_penalty, curve, is_dropped,
	allows_above_hundred, counted, dropped, teacher_comments)
	VALUES (:id, :grade_type, :student_id, :class_id, :version, :position, :grade_date, :score_id, :assignment_id,
	:category_id, :category_name, :weight, :allow_extra_credit, :points_earned, :points_possible, :percentage,
	:base_percentage, :weighted_score, :letter_grade, :extra_credit, :late_penalty, :curve, :is_dropped,
	:allows_above_hundred, :counted, :dropped, :teacher_comments)`

func headerRow(kind grading.GradeKind, h grading.GradeHeader, position int) gradeRow {
	return gradeRow{
		ID:        h.ID,
		GradeType: string(kind),
		StudentID: h.StudentID,
		ClassID:   h.ClassID,
		Version:   h.Version,
		Position:  position,
		GradeDate: null.NewTime(h.GradeDate.UTC(), !h.GradeDate.IsZero()),
	}
}

func gradeToRow(g grading.Grade, position int) gradeRow {
	r := headerRow(g.Kind(), g.Header(), position)
	switch g := g.(type) {
	case grading.AssignmentGrade:
		r.ScoreID = null.StringFrom(g.ScoreID)
		r.AssignmentID = null.StringFrom(g.AssignmentID)
		r.CategoryID = null.StringFrom(g.CategoryID)
		r.PointsEarned = g.PointsEarned
		r.PointsPossible = g.PointsPossible
		r.Percentage = null.Float64From(g.Percentage)
		r.LatePenalty = g.LatePenalty
		r.IsDropped = g.IsDropped
		r.TeacherComments = g.TeacherComments
	case grading.CategoryGrade:
		r.CategoryID = null.StringFrom(g.CategoryID)
		r.CategoryName = null.StringFrom(g.CategoryName)
		r.Weight = null.Float64From(g.Weight)
		r.AllowExtraCredit = g.AllowExtraCredit
		r.PointsEarned = g.PointsEarned
		r.PointsPossible = g.PointsPossible
		r.Percentage = null.Float64FromPtr(g.Percentage)
		r.WeightedScore = null.Float64FromPtr(g.WeightedScore)
		r.LetterGrade = g.LetterGrade
		r.Counted = g.Counted
		r.Dropped = g.Dropped
	case grading.OverallGrade:
		r.PointsEarned = g.PointsEarned
		r.PointsPossible = g.PointsPossible
		r.Percentage = null.Float64FromPtr(g.Percentage)
		r.BasePercentage = null.Float64FromPtr(g.BasePercentage)
		r.LetterGrade = g.LetterGrade
		r.ExtraCredit = g.ExtraCredit
		r.Curve = g.Curve
		r.AllowsAboveHundred = g.AllowsAboveHundred
	}
	return r
}

func (r gradeRow) header() grading.GradeHeader {
	return grading.GradeHeader{
		ID:        r.ID,
		StudentID: r.StudentID,
		ClassID:   r.ClassID,
		Version:   r.Version,
		GradeDate: r.GradeDate.Time.UTC(),
	}
}

func (r gradeRow) assignment() grading.AssignmentGrade {
	return grading.AssignmentGrade{
		GradeHeader:     r.header(),
		ScoreID:         r.ScoreID.String,
		AssignmentID:    r.AssignmentID.String,
		CategoryID:      r.CategoryID.String,
		PointsEarned:    r.PointsEarned,
		PointsPossible:  r.PointsPossible,
		Percentage:      r.Percentage.Float64,
		LatePenalty:     r.LatePenalty,
		IsDropped:       r.IsDropped,
		TeacherComments: r.TeacherComments,
	}
}

func (r gradeRow) category() grading.CategoryGrade {
	return grading.CategoryGrade{
		GradeHeader:      r.header(),
		CategoryID:       r.CategoryID.String,
		CategoryName:     r.CategoryName.String,
		Weight:           r.Weight.Float64,
		AllowExtraCredit: r.AllowExtraCredit,
		PointsEarned:     r.PointsEarned,
		PointsPossible:   r.PointsPossible,
		Percentage:       r.Percentage.Ptr(),
		WeightedScore:    r.WeightedScore.Ptr(),
		LetterGrade:      r.LetterGrade,
		Counted:          r.Counted,
		Dropped:          r.Dropped,
	}
}

func (r gradeRow) overall() grading.OverallGrade {
	return grading.OverallGrade{
		GradeHeader:        r.header(),
		PointsEarned:       r.PointsEarned,
		PointsPossible:     r.PointsPossible,
		BasePercentage:     r.BasePercentage.Ptr(),
		Percentage:         r.Percentage.Ptr(),
		ExtraCredit:        r.ExtraCredit,
		Curve:              r.Curve,
		LetterGrade:        r.LetterGrade,
		AllowsAboveHundred: r.AllowsAboveHundred,
	}
}

func (repo *gradingRepository) GetStudentGrades(ctx context.Context, classID, studentID string) (grading.StudentGrades, error) {
	var rows []gradeRow
	q := `SELECT * FROM grade WHERE class_id = ? AND student_id = ? ORDER BY grade_type, position`
	if err := repo.selectAll(ctx, &rows, q, classID, studentID); err != nil {
		return grading.StudentGrades{}, errors.Wrap(err, "selecting grades")
	}

	sg := grading.StudentGrades{
		Categories:  make([]grading.CategoryGrade, 0),
		Assignments: make([]grading.AssignmentGrade, 0),
	}
	var found bool
	for _, r := range rows {
		switch grading.GradeKind(r.GradeType) {
		case grading.KindAssignment:
			sg.Assignments = append(sg.Assignments, r.assignment())
		case grading.KindCategory:
			sg.Categories = append(sg.Categories, r.category())
		case grading.KindOverall:
			sg.Overall = r.overall()
			found = true
		}
	}
	if !found {
		return grading.StudentGrades{}, grading.ErrGradesNotFound
	}
	return sg, nil
}

func (repo *gradingRepository) ReplaceStudentGrades(ctx context.Context, grades grading.StudentGrades) error {
	return repo.RunInTx(ctx, func(tx grading.Repository) error {
		txRepo := tx.(*gradingRepository)
		o := grades.Overall
		if _, err := txRepo.execute(ctx, `DELETE FROM grade WHERE class_id = ? AND student_id = ?`, o.ClassID, o.StudentID); err != nil {
			return errors.Wrap(err, "deleting superseded grades")
		}

		rows := make([]gradeRow, 0, len(grades.Assignments)+len(grades.Categories)+1)
		for i, g := range grades.Assignments {
			rows = append(rows, gradeToRow(g, i))
		}
		for i, g := range grades.Categories {
			rows = append(rows, gradeToRow(g, i))
		}
		rows = append(rows, gradeToRow(o, 0))

		for _, r := range rows {
			q, args, err := sqlx.Named(insertGradeQuery, r)
			if err != nil {
				return errors.Wrap(err, "binding grade")
			}
			if _, err = txRepo.execute(ctx, q, args...); err != nil {
				return errors.Wrapf(err, "inserting %s grade", r.GradeType)
			}
		}
		return nil
	})
}

// orderable columns of overall grades
var overallOrderColumns = map[string]struct {
	column   string
	nullable bool
}{
	"student_id": {"student_id", false},
	"percentage": {"percentage", true},
	"grade_date": {"grade_date", true},
}

// orderBy renders the ORDER BY clause; undefined values sort first in ascending order on every engine.
func orderBy(ordering []core.DBOrdering) string {
	clauses := make([]string, 0, len(ordering)*2+1)
	for _, ord := range ordering {
		col, ok := overallOrderColumns[ord.Field]
		if !ok {
			continue
		}
		if col.nullable {
			nullsFirst := core.DBOrdering{Field: "(" + col.column + " IS NULL)", Ascending: !ord.Ascending}
			clauses = append(clauses, nullsFirst.String())
		}
		clauses = append(clauses, core.DBOrdering{Field: col.column, Ascending: ord.Ascending}.String())
	}
	clauses = append(clauses, "student_id ASC")
	return strings.Join(clauses, ", ")
}

func (repo *gradingRepository) QueryOverallGrades(ctx context.Context, classID string, ordering []core.DBOrdering) ([]grading.OverallGrade, error) {
	var rows []gradeRow
	q := `SELECT * FROM grade WHERE class_id = ? AND grade_type = ? ORDER BY ` + orderBy(ordering)
	if err := repo.selectAll(ctx, &rows, q, classID, string(grading.KindOverall)); err != nil {
		return nil, errors.Wrap(err, "selecting overall grades")
	}
	grades := make([]grading.OverallGrade, 0, len(rows))
	for _, r := range rows {
		grades = append(grades, r.overall())
	}
	return grades, nil
}

func (repo *gradingRepository) UpdateOverallGrades(ctx context.Context, grades []grading.OverallGrade) error {
	return repo.RunInTx(ctx, func(tx grading.Repository) error {
		txRepo := tx.(*gradingRepository)
		q := `UPDATE grade SET curve = ?, percentage = ?, letter_grade = ? WHERE id = ? AND grade_type = ?`
		for _, og := range grades {
			if math.IsNaN(og.Curve) {
				return errors.Errorf("overall grade %s: curve is not a number", og.ID)
			}
			res, err := txRepo.execute(ctx, q,
				og.Curve, null.Float64FromPtr(og.Percentage), og.LetterGrade, og.ID, string(grading.KindOverall))
			if err != nil {
				return errors.Wrap(err, "updating overall grade")
			}
			n, err := res.RowsAffected()
			if err != nil {
				return errors.Wrap(err, "updating overall grade")
			}
			if n != 1 {
				return errors.Wrapf(grading.ErrGradesNotFound, "overall grade %s", og.ID)
			}
		}
		return nil
	})
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
