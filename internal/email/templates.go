package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var workflowTemplate = template.Must(template.New("base.html").ParseFS(templateFS, "templates/base.html", "templates/workflow.html"))

type baseEmailData struct {
	Title    string
	Heading  string
	CTALabel string
	CTAURL   string
}

type workflowEmailData struct {
	baseEmailData
	LeadID     string
	Paragraphs []string
}

// Render returns the HTML body for msg.
func Render(msg Message) (string, error) {
	heading, ok := headings[msg.Kind]
	if !ok {
		return "", fmt.Errorf("unknown email kind %q", msg.Kind)
	}

	data := workflowEmailData{
		baseEmailData: baseEmailData{
			Title:   subjectFor(msg),
			Heading: heading,
		},
		LeadID:     msg.LeadID,
		Paragraphs: splitParagraphs(msg.Body),
	}
	if msg.LeadURL != "" {
		data.CTALabel = "Open lead " + msg.LeadID
		data.CTAURL = msg.LeadURL
	}

	var buf bytes.Buffer
	if err := workflowTemplate.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute workflow email template: %w", err)
	}
	return buf.String(), nil
}

func splitParagraphs(body string) []string {
	parts := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
