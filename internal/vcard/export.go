package vcard

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"text/template"
)

// TemplateName is the export template looked up in the exporter's filesystem.
const TemplateName = "contact.vcf.tmpl"

// ErrEmptyTemplate indicates the export template exists but has no content.
var ErrEmptyTemplate = errors.New("vcard: empty export template")

// Exporter renders contacts back into vCard text.
type Exporter struct {
	tmpl *template.Template
}

// NewExporter loads TemplateName from fsys. The template receives the
// contact slice as its data.
func NewExporter(fsys fs.FS) (*Exporter, error) {
	raw, err := fs.ReadFile(fsys, TemplateName)
	if err != nil {
		return nil, fmt.Errorf("vcard: loading %s: %w", TemplateName, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyTemplate, TemplateName)
	}
	tmpl, err := template.New(TemplateName).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("vcard: parsing template %s: %w", TemplateName, err)
	}
	return &Exporter{tmpl: tmpl}, nil
}

// Write renders contacts to w with CRLF line endings.
func (e *Exporter) Write(w io.Writer, contacts []Contact) error {
	var buf bytes.Buffer
	if err := e.tmpl.Execute(&buf, contacts); err != nil {
		return fmt.Errorf("vcard: executing template: %w", err)
	}
	out := strings.ReplaceAll(buf.String(), "\r\n", "\n")
	out = strings.ReplaceAll(out, "\n", "\r\n")
	if _, err := io.WriteString(w, out); err != nil {
		return fmt.Errorf("vcard: writing export: %w", err)
	}
	return nil
}
