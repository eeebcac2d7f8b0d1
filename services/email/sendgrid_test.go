package emailsvc

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/gradebook/core"
)

type loggerMock struct {
	core.Logger
	errors []string
}

func (l *loggerMock) Error(msg string, _ ...interface{}) {
	l.errors = append(l.errors, msg)
}

func Test_sendgridService_send(t *testing.T) {
	conf := &core.Config{
		AppName:          "Gradebook",
		SendgridApiKey:   "sg-key",
		DefaultFromEmail: mail.Address{Name: "Gradebook", Address: "noreply@school.test"},
	}
	msg := core.EmailMessage{
		To:          []mail.Address{{Name: "Alice", Address: "alice@school.test"}},
		Subject:     "Your grades for Biology were updated",
		TextContent: "Overall: 89.00% (B)",
		HTMLContent: "<p>Overall: 89.00% (B)</p>",
	}

	tests := []struct {
		name       string
		statusCode int
		wantErrors int
	}{
		{name: "accepted", statusCode: http.StatusAccepted},
		{name: "rejected", statusCode: http.StatusTooManyRequests, wantErrors: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := new(loggerMock)
			svc := newSendgridService(conf, logger)

			var got rest.Request
			svc.api = func(req rest.Request) (*rest.Response, error) {
				got = req
				return &rest.Response{StatusCode: tt.statusCode}, nil
			}
			svc.send(msg)

			assert.Equal(t, rest.Post, got.Method)
			assert.Equal(t, host+endpoint, got.BaseURL)
			assert.Equal(t, "Bearer sg-key", got.Headers["Authorization"])
			assert.Len(t, logger.errors, tt.wantErrors)

			var body struct {
				From struct {
					Email string `json:"email"`
				} `json:"from"`
				Personalizations []struct {
					Subject string `json:"subject"`
					To      []struct {
						Email string `json:"email"`
					} `json:"to"`
				} `json:"personalizations"`
				Content []struct {
					Type string `json:"type"`
				} `json:"content"`
			}
			require.NoError(t, json.Unmarshal(got.Body, &body))
			assert.Equal(t, "noreply@school.test", body.From.Email)
			require.Len(t, body.Personalizations, 1)
			assert.Equal(t, "[Gradebook] Your grades for Biology were updated", body.Personalizations[0].Subject)
			require.Len(t, body.Personalizations[0].To, 1)
			assert.Equal(t, "alice@school.test", body.Personalizations[0].To[0].Email)
			assert.Len(t, body.Content, 2)
		})
	}
}
