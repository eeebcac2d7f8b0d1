// Package notifysvc tells students when their grades change.
package notifysvc

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/grading"
)

const gradesPublishedTemplate = "grades_published"

type (
	categoryLine struct {
		Name       string
		Percentage string
	}

	gradesPublishedData struct {
		StudentName string
		ClassName   string
		ClassID     string
		Overall     string
		LetterGrade string
		Categories  []categoryLine
	}
)

type EmailPublisher struct {
	emailSvc core.EmailService
}

var _ grading.Publisher = (*EmailPublisher)(nil)

func NewEmailPublisher(emailSvc core.EmailService) *EmailPublisher {
	return &EmailPublisher{emailSvc: emailSvc}
}

// GradesPublished emails the student a summary of their grades. Students without an email address are skipped.
func (p *EmailPublisher) GradesPublished(_ context.Context, pub grading.Publication) error {
	if pub.Student.Email == "" {
		return nil
	}
	to, err := mail.ParseAddress(pub.Student.Email)
	if err != nil {
		return errors.Wrapf(err, "student %s: invalid email %q", pub.Student.ID, pub.Student.Email)
	}
	to.Name = pub.Student.Name

	data := gradesPublishedData{
		StudentName: pub.Student.Name,
		ClassName:   pub.Class.Name,
		ClassID:     pub.Class.ID,
		Overall:     formatPercentage(pub.Grades.Overall.Percentage),
		LetterGrade: pub.Grades.Overall.LetterGrade,
		Categories:  make([]categoryLine, 0, len(pub.Grades.Categories)),
	}
	for _, cg := range pub.Grades.Categories {
		data.Categories = append(data.Categories, categoryLine{Name: cg.CategoryName, Percentage: formatPercentage(cg.Percentage)})
	}

	p.emailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{*to},
		Subject:      fmt.Sprintf("Your grades for %s were updated", pub.Class.Name),
		TemplateName: gradesPublishedTemplate,
		TemplateData: data,
	})
	return nil
}

func formatPercentage(pct *float64) string {
	if pct == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f%%", *pct)
}
