package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/grading"
)

func decode(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(data, v))
}

func scoreBody(t *testing.T, studentID, categoryID, assignmentID string, earned, possible float64) []byte {
	return marchallObj(t, grading.NewScore{
		StudentID:      studentID,
		AssignmentID:   assignmentID,
		CategoryID:     categoryID,
		PointsEarned:   earned,
		PointsPossible: possible,
		SubmittedAt:    time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	})
}

func TestServer_home(t *testing.T) {
	a := setup(t)
	rec := a.do(httpTest{path: "/"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Gradebook API!", rec.Body.String())
}

func TestGradingApi_permissions(t *testing.T) {
	a := setup(t)
	path := "/v1/classes/" + class.ID + "/categories"
	emptySet, err := a.svc.GetCategorySet(context.Background(), class.ID)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "Auth required", path: path, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Invalid token", path: path, token: "not.a.jwt", wantCode: http.StatusUnauthorized},
		{
			name: "Student", path: path, token: getToken(t, a.conf, lea.ID, roleStudent),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "Teacher of another class", path: path, token: getToken(t, a.conf, otherClass.TeacherID, roleTeacher),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "Unknown class", path: "/v1/classes/lol/categories", token: getToken(t, a.conf, class.TeacherID, roleTeacher),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound),
		},
		{
			name: "Class teacher", path: path, token: getToken(t, a.conf, class.TeacherID, roleTeacher),
			wantCode: http.StatusOK, wantData: marchallObj(t, emptySet),
		},
		{
			name: "Admin", path: path, token: getToken(t, a.conf, "adm-1", roleAdmin),
			wantCode: http.StatusOK, wantData: marchallObj(t, emptySet),
		},
		{
			name: "Student's own grades, none yet", path: "/v1/classes/" + class.ID + "/students/" + lea.ID + "/grades",
			token: getToken(t, a.conf, lea.ID, roleStudent),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: grading.ErrGradesNotFound.Error()}),
		},
		{
			name: "Another student's grades", path: "/v1/classes/" + class.ID + "/students/" + omar.ID + "/grades",
			token: getToken(t, a.conf, lea.ID, roleStudent), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, a.do(tt))
		})
	}
}

func TestGradingApi_saveCategories(t *testing.T) {
	a := setup(t)
	token := getToken(t, a.conf, class.TeacherID, roleTeacher)
	path := "/v1/classes/" + class.ID + "/categories"
	body := func(cats ...grading.NewCategory) []byte {
		return marchallObj(t, grading.SaveCategories{Categories: cats})
	}

	tests := []struct {
		name     string
		body     []byte
		wantCode int
		wantKey  string
	}{
		{
			name:     "weights do not sum to 100",
			body:     body(grading.NewCategory{Name: "Tests", Weight: 40}, grading.NewCategory{Name: "Homework", Weight: 50}),
			wantCode: http.StatusBadRequest,
			wantKey:  "categories",
		},
		{
			name:     "duplicate names",
			body:     body(grading.NewCategory{Name: "Tests", Weight: 50}, grading.NewCategory{Name: " tests ", Weight: 50}),
			wantCode: http.StatusBadRequest,
			wantKey:  "categories[1].name",
		},
		{
			name:     "negative drop count",
			body:     body(grading.NewCategory{Name: "Tests", Weight: 100, DropLowest: -1}),
			wantCode: http.StatusBadRequest,
			wantKey:  "categories[0].drop_lowest",
		},
		{
			name:     "bad json",
			body:     []byte(`{"categories": "lol"}`),
			wantCode: http.StatusBadRequest,
			wantKey:  "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(httpTest{method: http.MethodPut, path: path, body: tt.body, token: token})
			assert.Equal(t, tt.wantCode, rec.Code)

			var data map[string]interface{}
			decode(t, rec.Body.Bytes(), &data)
			assert.Contains(t, data, tt.wantKey)
		})
	}

	// nothing was saved
	set, err := a.svc.GetCategorySet(context.Background(), class.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, set.Version)

	rec := a.do(httpTest{
		method: http.MethodPut, path: path, token: token,
		body: body(grading.NewCategory{Name: "Tests", Weight: 33.33}, grading.NewCategory{Name: "Quizzes", Weight: 33.33},
			grading.NewCategory{Name: "Homework", Weight: 33.33}),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	set, err = a.svc.GetCategorySet(context.Background(), class.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, set.Version)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, set.Categories)}, rec)

	// the saved set is served back
	tt := httpTest{path: path, token: token, wantCode: http.StatusOK, wantData: marchallObj(t, set)}
	checkCodeAndData(t, tt, a.do(tt))
}

func TestGradingApi_gradesLifecycle(t *testing.T) {
	a := setup(t)
	ctx := context.Background()
	teacherToken := getToken(t, a.conf, class.TeacherID, roleTeacher)
	leaToken := getToken(t, a.conf, lea.ID, roleStudent)
	classPath := "/v1/classes/" + class.ID

	// categories
	rec := a.do(httpTest{
		method: http.MethodPut, path: classPath + "/categories", token: teacherToken,
		body: marchallObj(t, grading.SaveCategories{Categories: []grading.NewCategory{
			{Name: "Tests", Weight: 60, SortOrder: 1},
			{Name: "Homework", Weight: 40, SortOrder: 2},
		}}),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cats []grading.GradeCategory
	decode(t, rec.Body.Bytes(), &cats)
	require.Len(t, cats, 2)
	testsID, hwID := cats[0].ID, cats[1].ID
	require.Equal(t, "Tests", cats[0].Name)

	// scores
	scoreTests := []httpTest{
		{
			name: "unknown category", method: http.MethodPost, path: classPath + "/scores", token: teacherToken,
			body:     scoreBody(t, lea.ID, "lol", "midterm", 85, 100),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"category_id": "not an active category of the class"}),
		},
		{
			name: "student not enrolled", method: http.MethodPost, path: classPath + "/scores", token: teacherToken,
			body:     scoreBody(t, "st-nobody", testsID, "midterm", 85, 100),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: grading.ErrStudentNotEnrolled.Error()}),
		},
		{
			name: "student cannot record scores", method: http.MethodPost, path: classPath + "/scores", token: leaToken,
			body:     scoreBody(t, lea.ID, testsID, "midterm", 100, 100),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "tests", method: http.MethodPost, path: classPath + "/scores", token: teacherToken,
			body: scoreBody(t, lea.ID, testsID, "midterm", 85, 100), wantCode: http.StatusCreated,
		},
		{
			name: "homework", method: http.MethodPost, path: classPath + "/scores", token: teacherToken,
			body: scoreBody(t, lea.ID, hwID, "hw-1", 19, 20), wantCode: http.StatusCreated,
		},
	}
	for _, tt := range scoreTests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, a.do(tt))
		})
	}

	sg, err := a.svc.GetStudentGrades(ctx, lea.ID, class.ID)
	require.NoError(t, err)
	require.NotNil(t, sg.Overall.Percentage)
	assert.InDelta(t, 89, *sg.Overall.Percentage, 1e-9)

	// curve
	curveTests := []struct {
		amount   float64
		wantCode int
		wantPct  float64
	}{
		{amount: 60, wantCode: http.StatusBadRequest, wantPct: 89},
		{amount: -50.5, wantCode: http.StatusBadRequest, wantPct: 89},
		{amount: 5, wantCode: http.StatusOK, wantPct: 94},
	}
	for _, tt := range curveTests {
		rec = a.do(httpTest{
			method: http.MethodPost, path: classPath + "/curve", token: teacherToken,
			body: marchallObj(t, grading.CurveRequest{Amount: tt.amount}),
		})
		assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())

		sg, err = a.svc.GetStudentGrades(ctx, lea.ID, class.ID)
		require.NoError(t, err)
		assert.InDelta(t, tt.wantPct, *sg.Overall.Percentage, 1e-9, "curve %v", tt.amount)
	}

	// student views their own grades
	sg, err = a.svc.GetStudentGrades(ctx, lea.ID, class.ID)
	require.NoError(t, err)
	tt := httpTest{
		path: classPath + "/students/" + lea.ID + "/grades", token: leaToken,
		wantCode: http.StatusOK, wantData: marchallObj(t, sg),
	}
	checkCodeAndData(t, tt, a.do(tt))

	// extra credit
	rec = a.do(httpTest{
		method: http.MethodPut, path: classPath + "/students/" + lea.ID + "/extra-credit", token: teacherToken,
		body: marchallObj(t, grading.NewExtraCredit{Points: 3, Reason: "museum report"}),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec.Body.Bytes(), &sg)
	assert.InDelta(t, 97, *sg.Overall.Percentage, 1e-9)
	assert.Equal(t, 3.0, sg.Overall.ExtraCredit)
	assert.Equal(t, "A", sg.Overall.LetterGrade)

	// ordering
	ordering := []core.DBOrdering{{Field: "percentage", Ascending: false}, {Field: "student_id", Ascending: true}}
	want, err := a.svc.ListClassGrades(ctx, class.ID, ordering)
	require.NoError(t, err)
	require.Len(t, want, 2)
	tt = httpTest{
		path: classPath + "/grades?ordering=-percentage,student_id", token: teacherToken,
		wantCode: http.StatusOK, wantData: marchallObj(t, want),
	}
	checkCodeAndData(t, tt, a.do(tt))

	// recalculation keeps the curve
	rec = a.do(httpTest{method: http.MethodPost, path: classPath + "/recalculate", token: teacherToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report grading.RecalculationReport
	decode(t, rec.Body.Bytes(), &report)
	assert.Equal(t, grading.RecalculationReport{
		ClassID: class.ID, Version: 1, Recalculated: 2, Failed: []grading.StudentFailure{},
	}, report)

	rec = a.do(httpTest{method: http.MethodPost, path: classPath + "/students/" + lea.ID + "/recalculate", token: teacherToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec.Body.Bytes(), &sg)
	assert.Equal(t, 5.0, sg.Overall.Curve)
	assert.InDelta(t, 97, *sg.Overall.Percentage, 1e-9)

	// removing a category orphans its scores
	rec = a.do(httpTest{
		method: http.MethodPut, path: classPath + "/categories", token: teacherToken,
		body: marchallObj(t, grading.SaveCategories{Categories: []grading.NewCategory{{Name: "Tests", Weight: 100}}}),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(httpTest{path: classPath + "/orphaned-scores", token: teacherToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var orphans []grading.RawScore
	decode(t, rec.Body.Bytes(), &orphans)
	require.Len(t, orphans, 1)
	assert.Equal(t, "hw-1", orphans[0].AssignmentID)
	assert.Equal(t, grading.UncategorizedID, orphans[0].CategoryID)

	// the surviving category kept its ID
	rec = a.do(httpTest{path: classPath + "/categories", token: teacherToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), testsID))
}
