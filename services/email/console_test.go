package emailsvc

import (
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/coursefactory/core"
)

func TestFromAddress(t *testing.T) {
	tests := []struct {
		name string
		from string
		want mail.Address
	}{
		{name: "bare", from: "noreply@localhost", want: mail.Address{Name: "Course Factory", Address: "noreply@localhost"}},
		{name: "named", from: "Factory <noreply@test.cd>", want: mail.Address{Name: "Factory", Address: "noreply@test.cd"}},
		{name: "unparsable", from: "noreply", want: mail.Address{Name: "Course Factory", Address: "noreply"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := &core.Config{AppName: "Course Factory", DefaultFromEmail: tt.from}
			assert.Equal(t, tt.want, fromAddress(conf))
		})
	}
}

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	ClearSentMessages()
	svc := NewConsoleServiceMock(&core.Config{AppName: "Course Factory", DefaultFromEmail: "noreply@localhost"})

	type data struct{ ID, Name, Topic, Error string }
	svc.SendMessages(
		&core.EmailMessage{
			To:              core.ParseAddresses([]string{"admin@test.cd", "not an address"}),
			Subject:         "Course generated",
			TemplateName:    "generation_completed",
			TemplateData:    data{ID: "c1", Name: "Go in Practice"},
			FrontendBaseURL: "http://localhost:5000",
		},
		&core.EmailMessage{Subject: "no recipients", BodyStr: "dropped"},
		&core.EmailMessage{To: []mail.Address{{Address: "admin@test.cd"}}, Subject: "plain", BodyStr: "hello"},
	)

	sent := Sent()
	require.Len(t, sent, 2)
	assert.Len(t, sent[0].To, 1)
	assert.Contains(t, sent[0].TextContent, `The course "Go in Practice" has been generated.`)
	assert.Contains(t, sent[0].TextContent, "http://localhost:5000/courses/c1")
	assert.Contains(t, sent[0].HTMLContent, "<strong>Go in Practice</strong>")
	assert.Equal(t, "hello", sent[1].TextContent)
	assert.Empty(t, sent[1].HTMLContent)
}
