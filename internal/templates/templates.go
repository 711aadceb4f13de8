// Package templates renders the browser pages of the verification flow
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
)

//go:embed html/*.html
var content embed.FS

// TemplateError reports a page that failed to render
type TemplateError struct {
	Message string
	Cause   error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template error: %s: %v", e.Message, e.Cause)
}

func (e *TemplateError) Unwrap() error {
	return e.Cause
}

// Templates manages the HTML templates
type Templates struct {
	verify   *template.Template
	complete *template.Template
	error    *template.Template
}

// LoadTemplates parses all embedded pages
func LoadTemplates() (*Templates, error) {
	t := &Templates{}
	var err error

	if t.verify, err = template.ParseFS(content, "html/layout.html", "html/verify.html"); err != nil {
		return nil, &TemplateError{Message: "parsing verify page", Cause: err}
	}
	if t.complete, err = template.ParseFS(content, "html/layout.html", "html/complete.html"); err != nil {
		return nil, &TemplateError{Message: "parsing complete page", Cause: err}
	}
	if t.error, err = template.ParseFS(content, "html/layout.html", "html/error.html"); err != nil {
		return nil, &TemplateError{Message: "parsing error page", Cause: err}
	}

	return t, nil
}

// VerifyData holds data for the code entry page
type VerifyData struct {
	Action    string
	UserCode  string
	Username  string
	CSRFToken string
	Error     string
}

// RenderVerify renders the code entry and consent page
func (t *Templates) RenderVerify(w io.Writer, data VerifyData) error {
	return render(w, t.verify, "verify", data)
}

// CompleteData holds data for the page shown after a decision
type CompleteData struct {
	Approved bool
	Message  string
}

// RenderComplete renders the completion page
func (t *Templates) RenderComplete(w io.Writer, data CompleteData) error {
	return render(w, t.complete, "complete", data)
}

// ErrorData holds data for the error page
type ErrorData struct {
	Title   string
	Message string
}

// RenderError renders the error page
func (t *Templates) RenderError(w io.Writer, data ErrorData) error {
	return render(w, t.error, "error", data)
}

// render executes into a buffer so a failed page never reaches w half written
func render(w io.Writer, tmpl *template.Template, name string, data any) error {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return &TemplateError{Message: "rendering " + name + " page", Cause: err}
	}
	if _, err := buf.WriteTo(w); err != nil {
		return &TemplateError{Message: "writing " + name + " page", Cause: err}
	}
	return nil
}
