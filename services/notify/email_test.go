package notifysvc_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/grading"
	emailsvc "github.com/trezcool/gradebook/services/email"
	notifysvc "github.com/trezcool/gradebook/services/notify"
	"github.com/trezcool/gradebook/tests"
)

func setup(t *testing.T) (*notifysvc.EmailPublisher, *emailsvc.ConsoleServiceMock) {
	conf := testutil.NewConfig(t)
	logger := testutil.NewLogger(conf)
	core.ParseEmailTemplates(conf, logger)

	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	return notifysvc.NewEmailPublisher(mailSvc), mailSvc
}

func publication(email string) grading.Publication {
	overall, tests := 89.0, 85.0
	return grading.Publication{
		Class:   grading.Class{ID: "bio-101", Name: "Biology", TeacherID: "t-1"},
		Student: grading.Student{ID: "st-alice", Name: "Alice", Email: email},
		Grades: grading.StudentGrades{
			Overall: grading.OverallGrade{Percentage: &overall, LetterGrade: "B"},
			Categories: []grading.CategoryGrade{
				{CategoryName: "Tests", Percentage: &tests},
				{CategoryName: "Labs"},
			},
		},
	}
}

func TestEmailPublisher_GradesPublished(t *testing.T) {
	pub, mailSvc := setup(t)

	require.NoError(t, pub.GradesPublished(context.Background(), publication("alice@school.test")))

	sent := mailSvc.SentMessages()
	require.Len(t, sent, 1)
	msg := sent[0]
	require.Len(t, msg.To, 1)
	assert.Equal(t, "alice@school.test", msg.To[0].Address)
	assert.Equal(t, "Alice", msg.To[0].Name)
	assert.Equal(t, "Your grades for Biology were updated", msg.Subject)

	assert.Contains(t, msg.TextContent, "Hi Alice,")
	assert.Contains(t, msg.TextContent, "Overall: 89.00% (B)")
	assert.Contains(t, msg.TextContent, "- Tests: 85.00%")
	assert.Contains(t, msg.TextContent, "- Labs: N/A")
	assert.Contains(t, msg.TextContent, "/classes/bio-101/grades")
	assert.NotEmpty(t, msg.HTMLContent)
}

func TestEmailPublisher_GradesPublished_noEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{name: "no email", email: ""},
		{name: "invalid email", email: "alice-at-school", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub, mailSvc := setup(t)

			err := pub.GradesPublished(context.Background(), publication(tt.email))
			if (err != nil) != tt.wantErr {
				t.Errorf("GradesPublished() error = %v, wantErr %v", err, tt.wantErr)
			}
			assert.Empty(t, mailSvc.SentMessages())
		})
	}
}
