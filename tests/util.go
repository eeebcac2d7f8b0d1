package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/grading"
	logsvc "github.com/trezcool/gradebook/services/logger"
	"github.com/trezcool/gradebook/storage/database"
)

// Seeder stores the classes and rosters that the school app owns.
type Seeder interface {
	CreateClass(ctx context.Context, class grading.Class) error
	Enroll(ctx context.Context, classID string, students ...grading.Student) error
}

// NewConfig loads the TEST profile.
func NewConfig(t *testing.T) *core.Config {
	t.Setenv("ENV", "TEST")
	return core.NewConfig()
}

func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewDiscardLogger(conf)
}

func NewValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")

	validate := validator.New()
	core.InitValidators(validate, translator)
	grading.InitValidators(validate, translator)
	return validate, translator
}

// OpenDB opens a migrated in-memory SQLite database that is closed when the test ends.
func OpenDB(t *testing.T) *sqlx.DB {
	db, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db, database.EngineSQLite); err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	return db
}

func SeedClass(t *testing.T, seeder Seeder, class grading.Class, students ...grading.Student) {
	ctx := context.Background()
	if err := seeder.CreateClass(ctx, class); err != nil {
		t.Fatalf("SeedClass() failed: %v", err)
	}
	if err := seeder.Enroll(ctx, class.ID, students...); err != nil {
		t.Fatalf("SeedClass() failed: %v", err)
	}
}

func SaveCategories(t *testing.T, svc *grading.Service, classID string, cats ...grading.NewCategory) []grading.GradeCategory {
	saved, err := svc.SaveGradeCategories(context.Background(), classID, cats)
	if err != nil {
		t.Fatalf("SaveCategories() failed: %v", err)
	}
	return saved
}

// CategoryID returns the ID of the category named `name`.
func CategoryID(t *testing.T, cats []grading.GradeCategory, name string) string {
	for _, c := range cats {
		if c.Name == name {
			return c.ID
		}
	}
	t.Fatalf("CategoryID(): no category %q", name)
	return ""
}

func RecordScore(t *testing.T, svc *grading.Service, classID, studentID, categoryID, assignmentID string, earned, possible float64) grading.StudentGrades {
	grades, err := svc.RecordScore(context.Background(), grading.NewScore{
		StudentID:      studentID,
		ClassID:        classID,
		AssignmentID:   assignmentID,
		CategoryID:     categoryID,
		PointsEarned:   earned,
		PointsPossible: possible,
		SubmittedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("RecordScore() failed: %v", err)
	}
	return grades
}

func Float(f float64) *float64 {
	return &f
}
