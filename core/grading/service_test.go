package grading_test

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/grading"
	inmemdb "github.com/trezcool/gradebook/storage/database/inmem"
	"github.com/trezcool/gradebook/tests"
)

var (
	class = grading.Class{ID: "bio-101", Name: "Biology", TeacherID: "t-1"}
	alice = grading.Student{ID: "st-alice", Name: "Alice", Email: "alice@school.test"}
	bob   = grading.Student{ID: "st-bob", Name: "Bob", Email: "bob@school.test"}

	testNow = time.Now().UTC()

	testsAndHomework = []grading.NewCategory{
		{Name: "Tests", Weight: 60, SortOrder: 1},
		{Name: "Homework", Weight: 40, SortOrder: 2},
	}
)

type publisherMock struct {
	mu   sync.Mutex
	pubs []grading.Publication
}

func (p *publisherMock) GradesPublished(_ context.Context, pub grading.Publication) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pubs = append(p.pubs, pub)
	return nil
}

func (p *publisherMock) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pubs)
}

// failingRepo fails to read the scores of one student.
type failingRepo struct {
	grading.Repository
	studentID string
}

func (r failingRepo) RunInTx(ctx context.Context, fn func(tx grading.Repository) error) error {
	return r.Repository.RunInTx(ctx, func(tx grading.Repository) error {
		return fn(failingRepo{Repository: tx, studentID: r.studentID})
	})
}

func (r failingRepo) QueryStudentScores(ctx context.Context, classID, studentID string) ([]grading.RawScore, error) {
	if studentID == r.studentID {
		return nil, errors.New("disk on fire")
	}
	return r.Repository.QueryStudentScores(ctx, classID, studentID)
}

type fixture struct {
	svc       *grading.Service
	repo      grading.Repository
	publisher *publisherMock
}

func setup(t *testing.T, wrap ...func(grading.Repository) grading.Repository) fixture {
	conf := testutil.NewConfig(t)
	validate, _ := testutil.NewValidator()

	db := inmemdb.Open()
	testutil.SeedClass(t, db, class, alice, bob)

	var repo grading.Repository = inmemdb.NewGradingRepository(db)
	for _, w := range wrap {
		repo = w(repo)
	}
	publisher := new(publisherMock)
	svc := grading.NewService(repo, publisher, testutil.NewLogger(conf), validate, conf)
	return fixture{svc: svc, repo: repo, publisher: publisher}
}

func overallPct(t *testing.T, sg grading.StudentGrades) float64 {
	t.Helper()
	require.NotNil(t, sg.Overall.Percentage)
	return *sg.Overall.Percentage
}

func TestService_endToEnd(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	cats := testutil.SaveCategories(t, f.svc, class.ID, testsAndHomework...)
	require.Len(t, cats, 2)
	testsID := testutil.CategoryID(t, cats, "Tests")
	hwID := testutil.CategoryID(t, cats, "Homework")

	testutil.RecordScore(t, f.svc, class.ID, alice.ID, testsID, "midterm", 85, 100)
	sg := testutil.RecordScore(t, f.svc, class.ID, alice.ID, hwID, "hw-1", 19, 20)
	assert.InDelta(t, 89, overallPct(t, sg), 1e-9)
	assert.Equal(t, "B", sg.Overall.LetterGrade)

	require.NoError(t, f.svc.ApplyCurve(ctx, class.ID, 5))

	stored, err := f.svc.GetStudentGrades(ctx, alice.ID, class.ID)
	require.NoError(t, err)
	assert.InDelta(t, 94, overallPct(t, stored), 1e-9)
	assert.Equal(t, "A", stored.Overall.LetterGrade)
	assert.Equal(t, 5.0, stored.Overall.Curve)
	assert.Len(t, stored.Categories, 2)
	assert.Len(t, stored.Assignments, 2)

	// the curve survives recalculations
	sg, err = f.svc.RecalculateStudentGrades(ctx, alice.ID, class.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, sg.Overall.Curve)
	assert.InDelta(t, 94, overallPct(t, sg), 1e-9)
}

func TestService_droppedTestAndCurves(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	cats := testutil.SaveCategories(t, f.svc, class.ID,
		grading.NewCategory{Name: "Tests", Weight: 40, DropLowest: 1, SortOrder: 1},
		grading.NewCategory{Name: "Homework", Weight: 60, SortOrder: 2},
	)
	testsID := testutil.CategoryID(t, cats, "Tests")
	hwID := testutil.CategoryID(t, cats, "Homework")

	testutil.RecordScore(t, f.svc, class.ID, alice.ID, testsID, "test-1", 100, 100)
	testutil.RecordScore(t, f.svc, class.ID, alice.ID, testsID, "test-2", 60, 100)
	testutil.RecordScore(t, f.svc, class.ID, alice.ID, testsID, "test-3", 90, 100)
	testutil.RecordScore(t, f.svc, class.ID, alice.ID, hwID, "hw-1", 80, 100)
	sg := testutil.RecordScore(t, f.svc, class.ID, alice.ID, hwID, "hw-2", 90, 100)

	require.Len(t, sg.Categories, 2)
	tests, hw := sg.Categories[0], sg.Categories[1]
	assert.InDelta(t, 95, *tests.Percentage, 1e-9)
	assert.InDelta(t, 38, *tests.WeightedScore, 1e-9)
	assert.Equal(t, 2, tests.Counted)
	assert.Equal(t, 1, tests.Dropped)
	assert.InDelta(t, 85, *hw.Percentage, 1e-9)
	assert.InDelta(t, 51, *hw.WeightedScore, 1e-9)
	assert.InDelta(t, 89, overallPct(t, sg), 1e-9)
	assert.Equal(t, "B", sg.Overall.LetterGrade)

	require.NoError(t, f.svc.ApplyCurve(ctx, class.ID, 5))
	sg, err := f.svc.GetStudentGrades(ctx, alice.ID, class.ID)
	require.NoError(t, err)
	assert.InDelta(t, 94, overallPct(t, sg), 1e-9)
	assert.Equal(t, "A", sg.Overall.LetterGrade)

	require.NoError(t, f.svc.ApplyCurve(ctx, class.ID, 3))
	sg, err = f.svc.GetStudentGrades(ctx, alice.ID, class.ID)
	require.NoError(t, err)
	assert.Equal(t, 8.0, sg.Overall.Curve)
	assert.InDelta(t, 97, overallPct(t, sg), 1e-9)

	sg, err = f.svc.RecalculateStudentGrades(ctx, alice.ID, class.ID)
	require.NoError(t, err)
	assert.Equal(t, 8.0, sg.Overall.Curve)
	assert.InDelta(t, 97, overallPct(t, sg), 1e-9)
	assert.Equal(t, "A", sg.Overall.LetterGrade)
}

// lockRecorder records the locks taken inside transactions.
type lockRecorder struct {
	grading.Repository
	mu    *sync.Mutex
	locks *[]string
}

func (r lockRecorder) RunInTx(ctx context.Context, fn func(tx grading.Repository) error) error {
	return r.Repository.RunInTx(ctx, func(tx grading.Repository) error {
		return fn(lockRecorder{Repository: tx, mu: r.mu, locks: r.locks})
	})
}

func (r lockRecorder) record(lock string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.locks = append(*r.locks, lock)
}

func (r lockRecorder) LockClass(ctx context.Context, classID string, mode grading.LockMode) error {
	if mode == grading.LockExclusive {
		r.record("class:exclusive")
	} else {
		r.record("class:shared")
	}
	return r.Repository.LockClass(ctx, classID, mode)
}

func (r lockRecorder) LockEnrollment(ctx context.Context, classID, studentID string) error {
	r.record("enrollment:" + studentID)
	return r.Repository.LockEnrollment(ctx, classID, studentID)
}

func TestService_locks(t *testing.T) {
	var (
		mu    sync.Mutex
		locks []string
	)
	f := setup(t, func(repo grading.Repository) grading.Repository {
		return lockRecorder{Repository: repo, mu: &mu, locks: &locks}
	})
	ctx := context.Background()
	reset := func() {
		mu.Lock()
		defer mu.Unlock()
		locks = nil
	}

	cats := testutil.SaveCategories(t, f.svc, class.ID, grading.NewCategory{Name: "Tests", Weight: 100})
	require.NotEmpty(t, locks)
	assert.Equal(t, "class:exclusive", locks[0])

	reset()
	testutil.RecordScore(t, f.svc, class.ID, alice.ID, cats[0].ID, "midterm", 8, 10)
	assert.Equal(t, []string{"class:shared", "enrollment:" + alice.ID}, locks)

	reset()
	require.NoError(t, f.svc.ApplyCurve(ctx, class.ID, 2))
	assert.Equal(t, []string{"class:exclusive"}, locks)

	reset()
	_, err := f.svc.RecalculateStudentGrades(ctx, "st-ghost", class.ID)
	assert.Equal(t, grading.ErrStudentNotEnrolled, errors.Cause(err))
	assert.Empty(t, locks)
}

// staleSetRepo returns an empty category set outside transactions, as if it was read before a save committed.
type staleSetRepo struct {
	grading.Repository
}

func (r staleSetRepo) GetCategorySet(_ context.Context, classID string) (grading.CategorySet, error) {
	return grading.CategorySet{ClassID: classID}, nil
}

func (r staleSetRepo) RunInTx(ctx context.Context, fn func(tx grading.Repository) error) error {
	return r.Repository.RunInTx(ctx, fn)
}

func TestService_RecalculateStudentGrades_newerCategorySet(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	cats := testutil.SaveCategories(t, f.svc, class.ID, grading.NewCategory{Name: "Tests", Weight: 100})
	testutil.RecordScore(t, f.svc, class.ID, alice.ID, cats[0].ID, "midterm", 7, 10)

	conf := testutil.NewConfig(t)
	validate, _ := testutil.NewValidator()
	svc := grading.NewService(staleSetRepo{Repository: f.repo}, nil, testutil.NewLogger(conf), validate, conf)

	sg, err := svc.RecalculateStudentGrades(ctx, alice.ID, class.ID)
	require.NoError(t, err)
	require.Len(t, sg.Categories, 1)
	assert.InDelta(t, 70, overallPct(t, sg), 1e-9)
}

func TestService_ApplyCurve_outOfRange(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	cats := testutil.SaveCategories(t, f.svc, class.ID, grading.NewCategory{Name: "Tests", Weight: 100})
	testutil.RecordScore(t, f.svc, class.ID, alice.ID, cats[0].ID, "quiz-1", 7, 10)

	err := f.svc.ApplyCurve(ctx, class.ID, 60)
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))

	sg, err := f.svc.GetStudentGrades(ctx, alice.ID, class.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, sg.Overall.Curve)
	assert.InDelta(t, 70, overallPct(t, sg), 1e-9)
}

func TestService_ApplyCurve_allOrNothing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	cats := testutil.SaveCategories(t, f.svc, class.ID, grading.NewCategory{Name: "Tests", Weight: 100})
	testutil.RecordScore(t, f.svc, class.ID, alice.ID, cats[0].ID, "quiz-1", 7, 10)
	testutil.RecordScore(t, f.svc, class.ID, bob.ID, cats[0].ID, "quiz-1", 9, 10)

	corrupt, err := f.repo.GetStudentGrades(ctx, class.ID, bob.ID)
	require.NoError(t, err)
	nan := math.NaN()
	corrupt.Overall.BasePercentage = &nan
	require.NoError(t, f.repo.ReplaceStudentGrades(ctx, corrupt))

	err = f.svc.ApplyCurve(ctx, class.ID, 5)
	require.Error(t, err)
	assert.IsType(t, grading.DataIntegrityError{}, errors.Cause(err))

	sg, err := f.svc.GetStudentGrades(ctx, alice.ID, class.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, sg.Overall.Curve)
	assert.InDelta(t, 70, overallPct(t, sg), 1e-9)
}

func TestService_ApplyCurve_unknownClass(t *testing.T) {
	f := setup(t)
	err := f.svc.ApplyCurve(context.Background(), "nope", 5)
	assert.Equal(t, grading.ErrClassNotFound, errors.Cause(err))
}

func TestService_SaveGradeCategories_validation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tests := []struct {
		name string
		cats []grading.NewCategory
	}{
		{
			name: "weights do not sum to 100",
			cats: []grading.NewCategory{{Name: "Tests", Weight: 40}, {Name: "Homework", Weight: 50}},
		},
		{
			name: "duplicate names",
			cats: []grading.NewCategory{{Name: "Tests", Weight: 50}, {Name: " tests ", Weight: 50}},
		},
		{
			name: "blank name",
			cats: []grading.NewCategory{{Name: "  ", Weight: 100}},
		},
		{
			name: "weight out of range",
			cats: []grading.NewCategory{{Name: "Tests", Weight: 120}, {Name: "Homework", Weight: -20}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SaveGradeCategories(ctx, class.ID, tt.cats)
			require.Error(t, err)
			assert.True(t, core.IsValidationError(err), "%v", err)

			set, err := f.svc.GetCategorySet(ctx, class.ID)
			require.NoError(t, err)
			assert.Equal(t, 0, set.Version)
			assert.Empty(t, set.Categories)
		})
	}
}

func TestService_SaveGradeCategories_weightTolerance(t *testing.T) {
	f := setup(t)
	cats, err := f.svc.SaveGradeCategories(context.Background(), class.ID, []grading.NewCategory{
		{Name: "A", Weight: 33.33},
		{Name: "B", Weight: 33.33},
		{Name: "C", Weight: 33.33},
	})
	require.NoError(t, err)
	assert.Len(t, cats, 3)
}

func TestService_SaveGradeCategories_versions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	v1 := testutil.SaveCategories(t, f.svc, class.ID, testsAndHomework...)
	testsID := testutil.CategoryID(t, v1, "Tests")
	hwID := testutil.CategoryID(t, v1, "Homework")
	testutil.RecordScore(t, f.svc, class.ID, alice.ID, testsID, "midterm", 80, 100)
	testutil.RecordScore(t, f.svc, class.ID, alice.ID, hwID, "hw-1", 10, 20)

	v2 := testutil.SaveCategories(t, f.svc, class.ID,
		grading.NewCategory{Name: "tests", Weight: 70},
		grading.NewCategory{Name: "Projects", Weight: 30},
	)
	assert.Equal(t, testsID, testutil.CategoryID(t, v2, "tests"), "a reused name keeps its category")

	set, err := f.svc.GetCategorySet(ctx, class.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, set.Version)
	assert.Len(t, set.Categories, 2)

	orphans, err := f.svc.ListOrphanedScores(ctx, class.ID)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "hw-1", orphans[0].AssignmentID)

	// recalculated on save: Homework is gone and Projects has no scores yet
	sg, err := f.svc.GetStudentGrades(ctx, alice.ID, class.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, sg.Overall.Version)
	assert.InDelta(t, 80, overallPct(t, sg), 1e-9)

	sg, err = f.svc.RecalculateStudentGrades(ctx, alice.ID, class.ID)
	require.NoError(t, err)
	require.Len(t, sg.Issues, 1)
	assert.Equal(t, grading.UncategorizedID, sg.Issues[0].CategoryID)

	// bob has no scores at all
	sg, err = f.svc.GetStudentGrades(ctx, bob.ID, class.ID)
	require.NoError(t, err)
	assert.Nil(t, sg.Overall.Percentage)
}

func TestService_SaveGradeCategories_dropLowest(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	cats := testutil.SaveCategories(t, f.svc, class.ID, grading.NewCategory{Name: "Quizzes", Weight: 100})
	testutil.RecordScore(t, f.svc, class.ID, alice.ID, cats[0].ID, "quiz-1", 5, 10)
	testutil.RecordScore(t, f.svc, class.ID, alice.ID, cats[0].ID, "quiz-2", 9, 10)

	_, err := f.svc.SaveGradeCategories(ctx, class.ID, []grading.NewCategory{{Name: "Quizzes", Weight: 100, DropLowest: 2}})
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))

	saved, err := f.svc.SaveGradeCategories(ctx, class.ID, []grading.NewCategory{{Name: "Quizzes", Weight: 100, DropLowest: 1}})
	require.NoError(t, err)
	assert.Equal(t, 1, saved[0].DropLowest)

	sg, err := f.svc.GetStudentGrades(ctx, alice.ID, class.ID)
	require.NoError(t, err)
	assert.InDelta(t, 90, overallPct(t, sg), 1e-9)
	assert.Equal(t, 1, sg.Categories[0].Dropped)
}

func TestService_RecalculateStudentGrades_idempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	cats := testutil.SaveCategories(t, f.svc, class.ID, testsAndHomework...)
	testutil.RecordScore(t, f.svc, class.ID, alice.ID, cats[0].ID, "midterm", 72, 90)

	first, err := f.svc.RecalculateStudentGrades(ctx, alice.ID, class.ID)
	require.NoError(t, err)
	second, err := f.svc.RecalculateStudentGrades(ctx, alice.ID, class.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	stored, err := f.svc.GetStudentGrades(ctx, alice.ID, class.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Overall, stored.Overall)
}

func TestService_RecalculateStudentGrades_notEnrolled(t *testing.T) {
	f := setup(t)
	_, err := f.svc.RecalculateStudentGrades(context.Background(), "st-ghost", class.ID)
	assert.Equal(t, grading.ErrStudentNotEnrolled, errors.Cause(err))
}

func TestService_RecalculateClass(t *testing.T) {
	f := setup(t, func(repo grading.Repository) grading.Repository {
		return failingRepo{Repository: repo, studentID: bob.ID}
	})
	ctx := context.Background()

	cats := testutil.SaveCategories(t, f.svc, class.ID, grading.NewCategory{Name: "Tests", Weight: 100})
	testutil.RecordScore(t, f.svc, class.ID, alice.ID, cats[0].ID, "midterm", 8, 10)

	report, err := f.svc.RecalculateClass(ctx, class.ID)
	require.NoError(t, err)
	assert.Equal(t, class.ID, report.ClassID)
	assert.Equal(t, 1, report.Version)
	assert.Equal(t, 1, report.Recalculated)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, bob.ID, report.Failed[0].StudentID)

	sg, err := f.svc.GetStudentGrades(ctx, alice.ID, class.ID)
	require.NoError(t, err)
	assert.InDelta(t, 80, overallPct(t, sg), 1e-9)
}

func TestService_RecordScore(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cats := testutil.SaveCategories(t, f.svc, class.ID, grading.NewCategory{Name: "Tests", Weight: 100})

	tests := []struct {
		name      string
		score     grading.NewScore
		wantCause error
		wantValid bool
	}{
		{
			name:      "invalid points",
			score:     grading.NewScore{StudentID: alice.ID, ClassID: class.ID, AssignmentID: "a", CategoryID: cats[0].ID, PointsPossible: 0},
			wantValid: true,
		},
		{
			name: "inactive category",
			score: grading.NewScore{
				StudentID: alice.ID, ClassID: class.ID, AssignmentID: "a", CategoryID: "removed", PointsPossible: 10,
				SubmittedAt: testNow,
			},
			wantValid: true,
		},
		{
			name: "not enrolled",
			score: grading.NewScore{
				StudentID: "st-ghost", ClassID: class.ID, AssignmentID: "a", CategoryID: cats[0].ID, PointsPossible: 10,
				SubmittedAt: testNow,
			},
			wantCause: grading.ErrStudentNotEnrolled,
		},
		{
			name: "unknown class",
			score: grading.NewScore{
				StudentID: alice.ID, ClassID: "nope", AssignmentID: "a", CategoryID: cats[0].ID, PointsPossible: 10,
				SubmittedAt: testNow,
			},
			wantCause: grading.ErrClassNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RecordScore(ctx, tt.score)
			require.Error(t, err)
			if tt.wantValid {
				assert.True(t, core.IsValidationError(err), "%v", err)
			} else {
				assert.Equal(t, tt.wantCause, errors.Cause(err))
			}
		})
	}

	// overriding a score keeps a single score per assignment
	testutil.RecordScore(t, f.svc, class.ID, alice.ID, cats[0].ID, "midterm", 5, 10)
	sg := testutil.RecordScore(t, f.svc, class.ID, alice.ID, cats[0].ID, "midterm", 9, 10)
	assert.Len(t, sg.Assignments, 1)
	assert.InDelta(t, 90, overallPct(t, sg), 1e-9)
}

func TestService_SetExtraCredit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cats := testutil.SaveCategories(t, f.svc, class.ID, grading.NewCategory{Name: "Tests", Weight: 100})
	testutil.RecordScore(t, f.svc, class.ID, alice.ID, cats[0].ID, "midterm", 8, 10)

	sg, err := f.svc.SetExtraCredit(ctx, class.ID, alice.ID, grading.NewExtraCredit{Points: 3, Reason: "science fair"})
	require.NoError(t, err)
	assert.InDelta(t, 83, overallPct(t, sg), 1e-9)
	assert.Equal(t, 3.0, sg.Overall.ExtraCredit)

	// capped for classes without extra credit categories
	sg, err = f.svc.SetExtraCredit(ctx, class.ID, alice.ID, grading.NewExtraCredit{Points: 10})
	require.NoError(t, err)
	assert.InDelta(t, 85, overallPct(t, sg), 1e-9)

	_, err = f.svc.SetExtraCredit(ctx, class.ID, alice.ID, grading.NewExtraCredit{Points: -1})
	assert.True(t, core.IsValidationError(err))
}

func TestService_ListClassGrades(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cats := testutil.SaveCategories(t, f.svc, class.ID, grading.NewCategory{Name: "Tests", Weight: 100})
	testutil.RecordScore(t, f.svc, class.ID, bob.ID, cats[0].ID, "midterm", 6, 10)
	testutil.RecordScore(t, f.svc, class.ID, alice.ID, cats[0].ID, "midterm", 9, 10)

	grades, err := f.svc.ListClassGrades(ctx, class.ID, []core.DBOrdering{{Field: "percentage", Ascending: false}})
	require.NoError(t, err)
	require.Len(t, grades, 2)
	assert.Equal(t, alice.ID, grades[0].StudentID)
	assert.Equal(t, bob.ID, grades[1].StudentID)

	grades, err = f.svc.ListClassGrades(ctx, class.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, grades[0].StudentID)
}

func TestService_publishesGrades(t *testing.T) {
	f := setup(t)
	cats := testutil.SaveCategories(t, f.svc, class.ID, grading.NewCategory{Name: "Tests", Weight: 100})
	before := f.publisher.count() // one per student on save
	assert.Equal(t, 2, before)

	testutil.RecordScore(t, f.svc, class.ID, alice.ID, cats[0].ID, "midterm", 9, 10)
	assert.Equal(t, before+1, f.publisher.count())
}

func TestService_notificationsDisabled(t *testing.T) {
	conf := testutil.NewConfig(t)
	conf.Grading.NotifyStudents = false
	validate, _ := testutil.NewValidator()
	db := inmemdb.Open()
	testutil.SeedClass(t, db, class, alice)

	publisher := new(publisherMock)
	svc := grading.NewService(inmemdb.NewGradingRepository(db), publisher, testutil.NewLogger(conf), validate, conf)
	testutil.SaveCategories(t, svc, class.ID, grading.NewCategory{Name: "Tests", Weight: 100})
	assert.Equal(t, 0, publisher.count())
}
