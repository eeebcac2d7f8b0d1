package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/grading"
)

type gradingRepository struct {
	db *DB
	tx *tables // set inside RunInTx; the DB lock is then held by the transaction
}

var _ grading.Repository = (*gradingRepository)(nil) // interface compliance check

func NewGradingRepository(db *DB) grading.Repository {
	return &gradingRepository{db: db}
}

// read runs fn on the current tables under a read lock (or on the transaction's tables).
func (repo *gradingRepository) read(fn func(t *tables) error) error {
	if repo.tx != nil {
		return fn(repo.tx)
	}
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return fn(repo.db.data)
}

// write runs fn as its own transaction unless already in one.
func (repo *gradingRepository) write(fn func(t *tables) error) error {
	if repo.tx != nil {
		return fn(repo.tx)
	}
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	tx := repo.db.data.clone()
	if err := fn(tx); err != nil {
		return err
	}
	repo.db.data = tx
	return nil
}

func (repo *gradingRepository) RunInTx(ctx context.Context, fn func(tx grading.Repository) error) error {
	if repo.tx != nil {
		return fn(repo)
	}
	return repo.write(func(t *tables) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(&gradingRepository{db: repo.db, tx: t})
	})
}

// LockClass only checks the class exists: a transaction already holds the DB lock until it ends.
func (repo *gradingRepository) LockClass(ctx context.Context, classID string, _ grading.LockMode) error {
	_, err := repo.GetClass(ctx, classID)
	return err
}

func (repo *gradingRepository) LockEnrollment(ctx context.Context, classID, studentID string) error {
	_, err := repo.GetEnrollment(ctx, classID, studentID)
	return err
}

func (repo *gradingRepository) GetClass(_ context.Context, classID string) (grading.Class, error) {
	var class grading.Class
	err := repo.read(func(t *tables) error {
		c, ok := t.classes[classID]
		if !ok {
			return grading.ErrClassNotFound
		}
		class = c
		return nil
	})
	return class, err
}

func (repo *gradingRepository) ListRoster(_ context.Context, classID string) ([]grading.Student, error) {
	var students []grading.Student
	err := repo.read(func(t *tables) error {
		roster := t.rosters[classID]
		students = make([]grading.Student, 0, len(roster))
		for _, st := range roster {
			students = append(students, st)
		}
		sort.Slice(students, func(i, j int) bool { return students[i].ID < students[j].ID })
		return nil
	})
	return students, err
}

func (repo *gradingRepository) GetEnrollment(_ context.Context, classID, studentID string) (grading.Student, error) {
	var student grading.Student
	err := repo.read(func(t *tables) error {
		st, ok := t.rosters[classID][studentID]
		if !ok {
			return grading.ErrStudentNotEnrolled
		}
		student = st
		return nil
	})
	return student, err
}

func (repo *gradingRepository) GetCategorySet(_ context.Context, classID string) (grading.CategorySet, error) {
	set := grading.CategorySet{ClassID: classID}
	err := repo.read(func(t *tables) error {
		if versions := t.categorySets[classID]; len(versions) > 0 {
			set = versions[len(versions)-1]
			set.Categories = append([]grading.GradeCategory(nil), set.Categories...)
		}
		return nil
	})
	return set, err
}

func (repo *gradingRepository) SaveCategorySet(_ context.Context, set grading.CategorySet, removed []string) error {
	return repo.write(func(t *tables) error {
		versions := t.categorySets[set.ClassID]
		if n := len(versions); n > 0 {
			// supersede the previous version
			prev := versions[n-1]
			deletedAt := set.CreatedAt
			cats := make([]grading.GradeCategory, len(prev.Categories))
			for i, c := range prev.Categories {
				if c.DeletedAt == nil {
					c.DeletedAt = &deletedAt
				}
				cats[i] = c
			}
			prev.Categories = cats
			versions[n-1] = prev
		}
		set.Categories = append([]grading.GradeCategory(nil), set.Categories...)
		t.categorySets[set.ClassID] = append(versions, set)

		if len(removed) > 0 {
			isRemoved := make(map[string]bool, len(removed))
			for _, id := range removed {
				isRemoved[id] = true
			}
			for id, s := range t.scores {
				if s.ClassID == set.ClassID && isRemoved[s.CategoryID] {
					s.CategoryID = grading.UncategorizedID
					t.scores[id] = s
				}
			}
		}
		return nil
	})
}

func (repo *gradingRepository) CountScoredAssignments(_ context.Context, classID string) (map[string]int, error) {
	counts := make(map[string]int)
	err := repo.read(func(t *tables) error {
		seen := make(map[string]map[string]bool)
		for _, s := range t.scores {
			if s.ClassID != classID {
				continue
			}
			if seen[s.CategoryID] == nil {
				seen[s.CategoryID] = make(map[string]bool)
			}
			seen[s.CategoryID][s.AssignmentID] = true
		}
		for catID, assignments := range seen {
			counts[catID] = len(assignments)
		}
		return nil
	})
	return counts, err
}

func (repo *gradingRepository) queryScores(match func(s grading.RawScore) bool) ([]grading.RawScore, error) {
	var scores []grading.RawScore
	err := repo.read(func(t *tables) error {
		scores = make([]grading.RawScore, 0)
		for _, s := range t.scores {
			if match(s) {
				scores = append(scores, s)
			}
		}
		sort.Slice(scores, func(i, j int) bool { return scores[i].ID < scores[j].ID })
		return nil
	})
	return scores, err
}

func (repo *gradingRepository) QueryStudentScores(_ context.Context, classID, studentID string) ([]grading.RawScore, error) {
	return repo.queryScores(func(s grading.RawScore) bool {
		return s.ClassID == classID && s.StudentID == studentID
	})
}

func (repo *gradingRepository) QueryOrphanedScores(_ context.Context, classID string) ([]grading.RawScore, error) {
	return repo.queryScores(func(s grading.RawScore) bool {
		return s.ClassID == classID && s.CategoryID == grading.UncategorizedID
	})
}

func (repo *gradingRepository) SaveScore(_ context.Context, score grading.RawScore) (grading.RawScore, error) {
	err := repo.write(func(t *tables) error {
		for id, s := range t.scores {
			if s.ClassID == score.ClassID && s.StudentID == score.StudentID && s.AssignmentID == score.AssignmentID {
				score.ID = id // override keeps the identity of the score
				break
			}
		}
		t.scores[score.ID] = score
		return nil
	})
	return score, err
}

func (repo *gradingRepository) GetExtraCredit(_ context.Context, classID, studentID string) (grading.ExtraCredit, error) {
	ec := grading.ExtraCredit{ClassID: classID, StudentID: studentID}
	err := repo.read(func(t *tables) error {
		if stored, ok := t.extraCredits[studentKey(classID, studentID)]; ok {
			ec = stored
		}
		return nil
	})
	return ec, err
}

func (repo *gradingRepository) SaveExtraCredit(_ context.Context, ec grading.ExtraCredit) error {
	return repo.write(func(t *tables) error {
		t.extraCredits[studentKey(ec.ClassID, ec.StudentID)] = ec
		return nil
	})
}

func (repo *gradingRepository) GetStudentGrades(_ context.Context, classID, studentID string) (grading.StudentGrades, error) {
	var grades grading.StudentGrades
	err := repo.read(func(t *tables) error {
		sg, ok := t.grades[studentKey(classID, studentID)]
		if !ok {
			return grading.ErrGradesNotFound
		}
		grades = sg
		return nil
	})
	return grades, err
}

func (repo *gradingRepository) ReplaceStudentGrades(_ context.Context, grades grading.StudentGrades) error {
	return repo.write(func(t *tables) error {
		o := grades.Overall
		t.grades[studentKey(o.ClassID, o.StudentID)] = grading.StudentGrades{
			Overall:     o,
			Categories:  append([]grading.CategoryGrade(nil), grades.Categories...),
			Assignments: append([]grading.AssignmentGrade(nil), grades.Assignments...),
		}
		return nil
	})
}

// orderable fields of overall grades
var overallOrderings = map[string]func(a, b grading.OverallGrade) int{
	"student_id": func(a, b grading.OverallGrade) int { return compareStrings(a.StudentID, b.StudentID) },
	"percentage": func(a, b grading.OverallGrade) int { return comparePercentages(a.Percentage, b.Percentage) },
	"grade_date": func(a, b grading.OverallGrade) int { return compareTimes(a.GradeDate, b.GradeDate) },
}

func (repo *gradingRepository) QueryOverallGrades(_ context.Context, classID string, ordering []core.DBOrdering) ([]grading.OverallGrade, error) {
	var grades []grading.OverallGrade
	err := repo.read(func(t *tables) error {
		grades = make([]grading.OverallGrade, 0)
		for _, sg := range t.grades {
			if sg.Overall.ClassID == classID {
				grades = append(grades, sg.Overall)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ords := append(append([]core.DBOrdering(nil), ordering...), core.DBOrdering{Field: "student_id", Ascending: true})
	sort.SliceStable(grades, func(i, j int) bool {
		for _, ord := range ords {
			cmp, ok := overallOrderings[ord.Field]
			if !ok {
				continue
			}
			c := cmp(grades[i], grades[j])
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
	return grades, nil
}

func (repo *gradingRepository) UpdateOverallGrades(_ context.Context, grades []grading.OverallGrade) error {
	return repo.write(func(t *tables) error {
		for _, og := range grades {
			key := studentKey(og.ClassID, og.StudentID)
			sg, ok := t.grades[key]
			if !ok || sg.Overall.ID != og.ID {
				return grading.ErrGradesNotFound
			}
			sg.Overall.Curve = og.Curve
			sg.Overall.Percentage = og.Percentage
			sg.Overall.LetterGrade = og.LetterGrade
			t.grades[key] = sg
		}
		return nil
	})
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// comparePercentages sorts undefined percentages first.
func comparePercentages(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	}
	return 0
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}
