package core

import (
	"bytes"
	htmltmpl "html/template"
	"net/mail"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

var (
	textTemplates = map[string]*texttmpl.Template{
		"generation_completed": texttmpl.Must(texttmpl.New("generation_completed").Parse(
			"The course \"{{.Data.Name}}\" has been generated.\r\n\r\nReview it here: {{.FrontendBaseURL}}/courses/{{.Data.ID}}\r\n")),
		"generation_failed": texttmpl.Must(texttmpl.New("generation_failed").Parse(
			"The generation of the course on \"{{.Data.Topic}}\" failed: {{.Data.Error}}\r\n\r\nRetry it here: {{.FrontendBaseURL}}/courses/{{.Data.ID}}\r\n")),
	}
	htmlTemplates = map[string]*htmltmpl.Template{
		"generation_completed": htmltmpl.Must(htmltmpl.New("generation_completed").Parse(
			`<p>The course <strong>{{.Data.Name}}</strong> has been generated.</p><p><a href="{{.FrontendBaseURL}}/courses/{{.Data.ID}}">Review it</a></p>`)),
		"generation_failed": htmltmpl.Must(htmltmpl.New("generation_failed").Parse(
			`<p>The generation of the course on <strong>{{.Data.Topic}}</strong> failed: {{.Data.Error}}</p><p><a href="{{.FrontendBaseURL}}/courses/{{.Data.ID}}">Retry it</a></p>`)),
	}
)

type (
	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName    string
		TemplateData    interface{}
		FrontendBaseURL string
		TextContent     string
		HTMLContent     string
	}

	ContextData struct {
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

func (m *EmailMessage) getContextData() ContextData {
	return ContextData{
		FrontendBaseURL: m.FrontendBaseURL,
		Data:            m.TemplateData,
	}
}

func (m *EmailMessage) renderText() error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
		return nil
	}
	tmpl, ok := textTemplates[m.TemplateName]
	if !ok {
		return nil
	}
	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, m.getContextData()); err != nil {
		return errors.Wrapf(err, "executing %s.txt", m.TemplateName)
	}
	m.TextContent = buff.String()
	return nil
}

func (m *EmailMessage) renderHTML() error {
	tmpl, ok := htmlTemplates[m.TemplateName]
	if !ok {
		return nil
	}
	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, m.getContextData()); err != nil {
		return errors.Wrapf(err, "executing %s.html", m.TemplateName)
	}
	m.HTMLContent = buff.String()
	return nil
}

func (m *EmailMessage) Render() error {
	if err := m.renderText(); err != nil {
		return err
	}
	return m.renderHTML()
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }

// ParseAddresses parses raw addresses, skipping the invalid ones.
func ParseAddresses(raw []string) []mail.Address {
	addrs := make([]mail.Address, 0, len(raw))
	for _, r := range raw {
		if a, err := mail.ParseAddress(r); err == nil {
			addrs = append(addrs, *a)
		}
	}
	return addrs
}
