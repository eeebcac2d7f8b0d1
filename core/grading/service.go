package grading

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/gradebook/core"
)

var (
	// errors
	ErrClassNotFound      = errors.New("class not found")
	ErrStudentNotEnrolled = errors.New("student not enrolled in class")
	ErrGradesNotFound     = errors.New("grades not found")
)

type LockMode int

const (
	LockShared LockMode = iota
	LockExclusive
)

type (
	Repository interface {
		// RunInTx runs fn against a repository bound to one transaction. The transaction is committed when fn
		// returns nil and rolled back otherwise; none of fn's writes are visible on rollback.
		RunInTx(ctx context.Context, fn func(tx Repository) error) error
		// LockClass holds a lock on the class until the running transaction ends. Recalculations take it
		// LockShared; curves and category saves take it LockExclusive, so they never interleave with a
		// recalculation of the same class. It must be called inside RunInTx.
		LockClass(ctx context.Context, classID string, mode LockMode) error
		// LockEnrollment serializes the recalculations of one student until the running transaction ends.
		LockEnrollment(ctx context.Context, classID, studentID string) error

		GetClass(ctx context.Context, classID string) (Class, error)
		ListRoster(ctx context.Context, classID string) ([]Student, error)
		GetEnrollment(ctx context.Context, classID, studentID string) (Student, error)

		// GetCategorySet returns the latest category set of the class (Version 0 if none was ever saved).
		GetCategorySet(ctx context.Context, classID string) (CategorySet, error)
		// SaveCategorySet soft-deletes the active set of the class, stores `set` as the new active version and
		// moves the scores of the `removed` categories to UncategorizedID.
		SaveCategorySet(ctx context.Context, set CategorySet, removed []string) error
		// CountScoredAssignments returns the number of distinct scored assignments per category ID.
		CountScoredAssignments(ctx context.Context, classID string) (map[string]int, error)

		QueryStudentScores(ctx context.Context, classID, studentID string) ([]RawScore, error)
		QueryOrphanedScores(ctx context.Context, classID string) ([]RawScore, error)
		// SaveScore inserts the score or overrides the existing one of the same student and assignment.
		SaveScore(ctx context.Context, score RawScore) (RawScore, error)

		GetExtraCredit(ctx context.Context, classID, studentID string) (ExtraCredit, error)
		SaveExtraCredit(ctx context.Context, ec ExtraCredit) error

		// GetStudentGrades returns ErrGradesNotFound when the student was never graded in the class.
		GetStudentGrades(ctx context.Context, classID, studentID string) (StudentGrades, error)
		// ReplaceStudentGrades supersedes every stored grade of the student in the class.
		ReplaceStudentGrades(ctx context.Context, grades StudentGrades) error
		QueryOverallGrades(ctx context.Context, classID string, ordering []core.DBOrdering) ([]OverallGrade, error)
		// UpdateOverallGrades updates the curve, percentage and letter of existing overall grades.
		UpdateOverallGrades(ctx context.Context, grades []OverallGrade) error
	}

	// Publication is sent once a student's grades were recalculated and stored.
	Publication struct {
		Class   Class
		Student Student
		Grades  StudentGrades
	}

	// Publisher notifies students that their grades were published.
	Publisher interface {
		GradesPublished(ctx context.Context, pub Publication) error
	}

	StudentFailure struct {
		StudentID string `json:"student_id"`
		Error     string `json:"error"`
	}

	// RecalculationReport summarises a class-wide recalculation. Failed students did not abort the others.
	RecalculationReport struct {
		ClassID      string           `json:"class_id"`
		Version      int              `json:"version"`
		Recalculated int              `json:"recalculated"`
		Failed       []StudentFailure `json:"failed"`
	}

	Service struct {
		repo      Repository
		publisher Publisher
		logger    core.Logger
		validate  *validator.Validate
		policy    Policy
		workers   int
		now       func() time.Time
	}
)

// NewService creates the grading service. `publisher` may be nil to disable notifications.
func NewService(repo Repository, publisher Publisher, logger core.Logger, validate *validator.Validate, conf *core.Config) *Service {
	workers := conf.Grading.Workers
	if workers < 1 {
		workers = 1
	}
	if !conf.Grading.NotifyStudents {
		publisher = nil
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		validate:  validate,
		policy:    Policy{ExtraCreditCeiling: conf.Grading.ExtraCreditCeiling},
		workers:   workers,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RecalculateStudentGrades recomputes and stores the grades of one student in one class.
func (svc *Service) RecalculateStudentGrades(ctx context.Context, studentID, classID string) (StudentGrades, error) {
	class, err := svc.repo.GetClass(ctx, classID)
	if err != nil {
		return StudentGrades{}, errors.Wrap(err, "getting class")
	}
	student, err := svc.repo.GetEnrollment(ctx, classID, studentID)
	if err != nil {
		return StudentGrades{}, errors.Wrap(err, "getting enrollment")
	}
	set, err := svc.repo.GetCategorySet(ctx, classID)
	if err != nil {
		return StudentGrades{}, errors.Wrap(err, "getting category set")
	}
	return svc.recalculate(ctx, class, student, set)
}

// RecalculateClass recomputes the grades of every enrolled student against one snapshot of the category set.
func (svc *Service) RecalculateClass(ctx context.Context, classID string) (RecalculationReport, error) {
	class, err := svc.repo.GetClass(ctx, classID)
	if err != nil {
		return RecalculationReport{}, errors.Wrap(err, "getting class")
	}
	set, err := svc.repo.GetCategorySet(ctx, classID)
	if err != nil {
		return RecalculationReport{}, errors.Wrap(err, "getting category set")
	}
	return svc.recalculateClass(ctx, class, set)
}

func (svc *Service) recalculateClass(ctx context.Context, class Class, set CategorySet) (RecalculationReport, error) {
	roster, err := svc.repo.ListRoster(ctx, class.ID)
	if err != nil {
		return RecalculationReport{}, errors.Wrap(err, "listing roster")
	}

	report := RecalculationReport{ClassID: class.ID, Version: set.Version, Failed: make([]StudentFailure, 0)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(svc.workers)
	for _, student := range roster {
		student := student
		g.Go(func() error {
			err := ctx.Err()
			if err == nil {
				_, err = svc.recalculate(ctx, class, student, set)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				svc.logger.Error(
					fmt.Sprintf("recalculating grades of student %s in class %s: %v", student.ID, class.ID, err),
					err,
				)
				report.Failed = append(report.Failed, StudentFailure{StudentID: student.ID, Error: err.Error()})
				return nil // one student never aborts the batch
			}
			report.Recalculated++
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].StudentID < report.Failed[j].StudentID })
	return report, nil
}

// recalculate computes and stores the grades of one student. The stored curve is read and the new grades written
// under a shared class lock, which ApplyCurve takes exclusively.
func (svc *Service) recalculate(ctx context.Context, class Class, student Student, set CategorySet) (StudentGrades, error) {
	var grades StudentGrades
	err := svc.repo.RunInTx(ctx, func(tx Repository) error {
		if err := tx.LockClass(ctx, class.ID, LockShared); err != nil {
			return errors.Wrap(err, "locking class")
		}
		if err := tx.LockEnrollment(ctx, class.ID, student.ID); err != nil {
			return errors.Wrap(err, "locking enrollment")
		}
		// a category save may have committed since the snapshot was taken
		current, err := tx.GetCategorySet(ctx, class.ID)
		if err != nil {
			return errors.Wrap(err, "getting category set")
		}
		if current.Version > set.Version {
			set = current
		}
		scores, err := tx.QueryStudentScores(ctx, class.ID, student.ID)
		if err != nil {
			return errors.Wrap(err, "querying scores")
		}
		ec, err := tx.GetExtraCredit(ctx, class.ID, student.ID)
		if err != nil {
			return errors.Wrap(err, "getting extra credit")
		}

		adj := Adjustments{ExtraCredit: ec.Points}
		prev, err := tx.GetStudentGrades(ctx, class.ID, student.ID)
		switch {
		case err == nil:
			adj.Curve = prev.Overall.Curve
		case errors.Cause(err) != ErrGradesNotFound:
			return errors.Wrap(err, "getting previous grades")
		}

		grades = ComputeStudentGrades(student.ID, set, scores, adj, svc.policy)
		return errors.Wrap(tx.ReplaceStudentGrades(ctx, grades), "replacing grades")
	})
	if err != nil {
		return StudentGrades{}, err
	}

	for _, issue := range grades.Issues {
		svc.logger.Warn(fmt.Sprintf("class %s, student %s: excluded %v", class.ID, student.ID, issue), issue)
	}
	svc.publish(ctx, Publication{Class: class, Student: student, Grades: grades})
	return grades, nil
}

func (svc *Service) publish(ctx context.Context, pub Publication) {
	if svc.publisher == nil {
		return
	}
	if err := svc.publisher.GradesPublished(ctx, pub); err != nil {
		svc.logger.Warn(fmt.Sprintf("publishing grades of student %s: %v", pub.Student.ID, err), err)
	}
}

// SaveGradeCategories replaces the active category set of a class with a new version, then recalculates the grades
// of every enrolled student against it. Nothing is persisted when validation fails.
// Individual recalculation failures are logged and do not fail the save.
func (svc *Service) SaveGradeCategories(ctx context.Context, classID string, cats []NewCategory) ([]GradeCategory, error) {
	data := SaveCategories{Categories: cats}
	if err := data.Validate(svc.validate); err != nil {
		return nil, err
	}

	class, err := svc.repo.GetClass(ctx, classID)
	if err != nil {
		return nil, errors.Wrap(err, "getting class")
	}

	var saved CategorySet
	err = svc.repo.RunInTx(ctx, func(tx Repository) error {
		if err := tx.LockClass(ctx, classID, LockExclusive); err != nil {
			return errors.Wrap(err, "locking class")
		}
		current, err := tx.GetCategorySet(ctx, classID)
		if err != nil {
			return errors.Wrap(err, "getting category set")
		}
		counts, err := tx.CountScoredAssignments(ctx, classID)
		if err != nil {
			return errors.Wrap(err, "counting scored assignments")
		}

		next, removed := svc.nextCategorySet(classID, current, data.Categories)
		if err = checkDropLowest(next, counts); err != nil {
			return err
		}
		if err = tx.SaveCategorySet(ctx, next, removed); err != nil {
			return errors.Wrap(err, "saving category set")
		}
		saved = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	report, err := svc.recalculateClass(ctx, class, saved)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("recalculating class %s: %v", classID, err), err)
	} else if len(report.Failed) > 0 {
		svc.logger.Warn(fmt.Sprintf("recalculating class %s: %d student(s) failed", classID, len(report.Failed)), map[string]interface{}{"failed": report.Failed})
	}
	return saved.Active(), nil
}

// nextCategorySet builds the next version of a category set. Categories keep their ID when their name is reused;
// the IDs of the current categories that are not reused are returned as removed.
func (svc *Service) nextCategorySet(classID string, current CategorySet, cats []NewCategory) (CategorySet, []string) {
	now := svc.now()
	idsByName := make(map[string]string, len(current.Categories))
	for _, c := range current.Active() {
		idsByName[core.CleanString(c.Name, true)] = c.ID
	}

	next := CategorySet{
		ClassID:    classID,
		Version:    current.Version + 1,
		Categories: make([]GradeCategory, 0, len(cats)),
		CreatedAt:  now,
	}
	kept := make(map[string]bool, len(cats))
	for _, nc := range cats {
		key := core.CleanString(nc.Name, true)
		id, ok := idsByName[key]
		if !ok {
			id = uuid.New().String()
		}
		kept[id] = true
		next.Categories = append(next.Categories, GradeCategory{
			ID:                id,
			ClassID:           classID,
			Version:           next.Version,
			Name:              nc.Name,
			Weight:            nc.Weight,
			DropLowest:        nc.DropLowest,
			LatePenaltyPerDay: nc.LatePenaltyPerDay,
			MaxLatePenalty:    nc.MaxLatePenalty,
			AllowExtraCredit:  nc.AllowExtraCredit,
			SortOrder:         nc.SortOrder,
			CreatedAt:         now,
		})
	}

	removed := make([]string, 0)
	for _, id := range idsByName {
		if !kept[id] {
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	return next, removed
}

// checkDropLowest rejects drop counts that would leave no score in a category that already has scored assignments.
func checkDropLowest(set CategorySet, scoredAssignments map[string]int) error {
	var flds []core.FieldError
	for i, c := range set.Categories {
		n := scoredAssignments[c.ID]
		if n > 0 && c.DropLowest >= n {
			flds = append(flds, core.FieldError{
				Field: fmt.Sprintf("categories[%d].drop_lowest", i),
				Error: fmt.Sprintf("cannot drop %d of the %d assignment(s) already scored in %q", c.DropLowest, n, c.Name),
			})
		}
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// ApplyCurve adds `amount` percentage points to the curve of every stored overall grade of the class.
// Curves accumulate. Either every overall grade of the class is curved or none is.
func (svc *Service) ApplyCurve(ctx context.Context, classID string, amount float64) error {
	if err := ValidateCurve(amount); err != nil {
		return err
	}
	if _, err := svc.repo.GetClass(ctx, classID); err != nil {
		return errors.Wrap(err, "getting class")
	}

	return svc.repo.RunInTx(ctx, func(tx Repository) error {
		if err := tx.LockClass(ctx, classID, LockExclusive); err != nil {
			return errors.Wrap(err, "locking class")
		}
		grades, err := tx.QueryOverallGrades(ctx, classID, nil)
		if err != nil {
			return errors.Wrap(err, "querying overall grades")
		}
		for i := range grades {
			if err = grades[i].AddCurve(amount); err != nil {
				return errors.Wrapf(err, "curving grade of student %s", grades[i].StudentID)
			}
		}
		return errors.Wrap(tx.UpdateOverallGrades(ctx, grades), "updating overall grades")
	})
}

// RecordScore stores a graded submission (or overrides a previous one) and recalculates the student's grades.
func (svc *Service) RecordScore(ctx context.Context, ns NewScore) (StudentGrades, error) {
	if err := ns.Validate(svc.validate); err != nil {
		return StudentGrades{}, err
	}

	class, err := svc.repo.GetClass(ctx, ns.ClassID)
	if err != nil {
		return StudentGrades{}, errors.Wrap(err, "getting class")
	}
	student, err := svc.repo.GetEnrollment(ctx, ns.ClassID, ns.StudentID)
	if err != nil {
		return StudentGrades{}, errors.Wrap(err, "getting enrollment")
	}
	set, err := svc.repo.GetCategorySet(ctx, ns.ClassID)
	if err != nil {
		return StudentGrades{}, errors.Wrap(err, "getting category set")
	}
	if !set.hasActive(ns.CategoryID) {
		return StudentGrades{}, core.NewValidationError(nil, core.FieldError{
			Field: "category_id",
			Error: "not an active category of the class",
		})
	}

	score := RawScore{
		ID:              uuid.New().String(),
		StudentID:       ns.StudentID,
		ClassID:         ns.ClassID,
		AssignmentID:    ns.AssignmentID,
		AssignmentTitle: ns.AssignmentTitle,
		CategoryID:      ns.CategoryID,
		PointsEarned:    ns.PointsEarned,
		PointsPossible:  ns.PointsPossible,
		SubmittedAt:     ns.SubmittedAt.UTC(),
		DueAt:           ns.DueAt,
		IsLate:          ns.IsLate,
		DaysLate:        ns.DaysLate,
		GradedAt:        svc.now(),
		TeacherComments: ns.TeacherComments,
	}
	if _, err = svc.repo.SaveScore(ctx, score); err != nil {
		return StudentGrades{}, errors.Wrap(err, "saving score")
	}
	return svc.recalculate(ctx, class, student, set)
}

// SetExtraCredit replaces the flat extra credit of a student and recalculates their grades.
func (svc *Service) SetExtraCredit(ctx context.Context, classID, studentID string, nec NewExtraCredit) (StudentGrades, error) {
	if err := nec.Validate(svc.validate); err != nil {
		return StudentGrades{}, err
	}
	if _, err := svc.repo.GetEnrollment(ctx, classID, studentID); err != nil {
		return StudentGrades{}, errors.Wrap(err, "getting enrollment")
	}

	ec := ExtraCredit{ClassID: classID, StudentID: studentID, Points: nec.Points, Reason: nec.Reason}
	if err := svc.repo.SaveExtraCredit(ctx, ec); err != nil {
		return StudentGrades{}, errors.Wrap(err, "saving extra credit")
	}
	return svc.RecalculateStudentGrades(ctx, studentID, classID)
}

func (svc *Service) GetStudentGrades(ctx context.Context, studentID, classID string) (StudentGrades, error) {
	if _, err := svc.repo.GetEnrollment(ctx, classID, studentID); err != nil {
		return StudentGrades{}, errors.Wrap(err, "getting enrollment")
	}
	grades, err := svc.repo.GetStudentGrades(ctx, classID, studentID)
	return grades, errors.Wrap(err, "getting student grades")
}

func (svc *Service) ListClassGrades(ctx context.Context, classID string, ordering []core.DBOrdering) ([]OverallGrade, error) {
	if _, err := svc.repo.GetClass(ctx, classID); err != nil {
		return nil, errors.Wrap(err, "getting class")
	}
	grades, err := svc.repo.QueryOverallGrades(ctx, classID, ordering)
	return grades, errors.Wrap(err, "querying overall grades")
}

func (svc *Service) GetClass(ctx context.Context, classID string) (Class, error) {
	class, err := svc.repo.GetClass(ctx, classID)
	return class, errors.Wrap(err, "getting class")
}

func (svc *Service) GetCategorySet(ctx context.Context, classID string) (CategorySet, error) {
	if _, err := svc.repo.GetClass(ctx, classID); err != nil {
		return CategorySet{}, errors.Wrap(err, "getting class")
	}
	set, err := svc.repo.GetCategorySet(ctx, classID)
	if err != nil {
		return CategorySet{}, errors.Wrap(err, "getting category set")
	}
	set.Categories = set.Active()
	return set, nil
}

// ListOrphanedScores returns the scores of the class whose category was removed.
func (svc *Service) ListOrphanedScores(ctx context.Context, classID string) ([]RawScore, error) {
	if _, err := svc.repo.GetClass(ctx, classID); err != nil {
		return nil, errors.Wrap(err, "getting class")
	}
	scores, err := svc.repo.QueryOrphanedScores(ctx, classID)
	return scores, errors.Wrap(err, "querying orphaned scores")
}

func (s CategorySet) hasActive(categoryID string) bool {
	for _, c := range s.Categories {
		if c.ID == categoryID && c.DeletedAt == nil {
			return true
		}
	}
	return false
}
