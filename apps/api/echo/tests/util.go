package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	echoapi "github.com/trezcool/gradebook/apps/api/echo"
	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/grading"
	inmemdb "github.com/trezcool/gradebook/storage/database/inmem"
	"github.com/trezcool/gradebook/tests"
)

var (
	class      = grading.Class{ID: "hist-301", Name: "Modern History", TeacherID: "t-dupont"}
	otherClass = grading.Class{ID: "art-110", Name: "Drawing", TeacherID: "t-moreau"}
	lea        = grading.Student{ID: "st-lea", Name: "Lea", Email: "lea@school.test"}
	omar       = grading.Student{ID: "st-omar", Name: "Omar", Email: "omar@school.test"}

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
	errNotFound     = httpErr{Error: "not found"}
)

type app struct {
	conf   *core.Config
	server *echoapi.Server
	svc    *grading.Service
}

func setup(t *testing.T) app {
	conf := testutil.NewConfig(t)
	conf.Debug = false // keep error messages stable
	logger := testutil.NewLogger(conf)
	validate, translator := testutil.NewValidator()

	// set up DB & repos
	db := inmemdb.Open()
	testutil.SeedClass(t, db, class, lea, omar)
	testutil.SeedClass(t, db, otherClass, omar)

	// set up services
	svc := grading.NewService(inmemdb.NewGradingRepository(db), nil, logger, validate, conf)

	// set up server
	server := echoapi.NewServer(&echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		GradingSvc: svc,
		Translator: translator,
	})
	return app{conf: conf, server: server, svc: svc}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte // not checked when nil
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func (a app) do(tt httpTest) *httptest.ResponseRecorder {
	method := tt.method
	if method == "" {
		method = http.MethodGet
	}
	req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
	a.server.ServeHTTP(rec, req)
	return rec
}

type role int

const (
	roleStudent role = iota
	roleTeacher
	roleAdmin
)

func getToken(t *testing.T, conf *core.Config, subject string, r role) string {
	claims := echoapi.NewClaims(conf, subject, subject, subject+"@school.test")
	switch r {
	case roleStudent:
		claims.IsStudent = true
	case roleTeacher:
		claims.IsTeacher = true
	case roleAdmin:
		claims.IsAdmin = true
	}
	token, err := echoapi.GenerateToken(conf, claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
