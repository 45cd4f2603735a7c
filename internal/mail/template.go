// Package mail renders templated emails and hands them to a transport.
// The rest of the service only depends on Sender: "send template T to
// address A with substitutions S".
package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
)

// Template names understood by the renderer.
const (
	TemplateRegistration    = "registration"
	TemplateForgotPassword  = "forgot-password"
	TemplatePasswordChanged = "password-changed"
)

var subjects = map[string]string{
	TemplateRegistration:    "Welcome",
	TemplateForgotPassword:  "Password Reset",
	TemplatePasswordChanged: "Password Changed",
}

//go:embed templates/*.html
var templateFS embed.FS

// Sender sends a templated email. Implementations report whether the
// message was accepted for delivery.
type Sender interface {
	SendTemplatedEmail(ctx context.Context, to, templateName string, data map[string]string) error
}

// Message is a rendered email ready for a transport.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Renderer turns a template name and substitutions into a Message.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	t, err := template.New("mail").Option("missingkey=error").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	return &Renderer{tmpl: t}, nil
}

// Render executes templateName with data.
func (r *Renderer) Render(to, templateName string, data map[string]string) (Message, error) {
	subject, ok := subjects[templateName]
	if !ok {
		return Message{}, fmt.Errorf("unknown email template %q", templateName)
	}
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, templateName+".html", data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", templateName, err)
	}
	return Message{To: to, Subject: subject, HTML: buf.String()}, nil
}
