package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"sync"
	"time"

	"sylvia_browser_agent/internal/appinfo"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

//go:embed report_template.html
var reportTemplateFS embed.FS

type reportTemplateData struct {
	AppDisplay string
	Title      string
	Preheader  string
	Body       template.HTML
	Footer     string
}

var (
	reportTemplateOnce sync.Once
	reportTemplate     *template.Template
	reportTemplateErr  error
)

func getReportTemplate() (*template.Template, error) {
	reportTemplateOnce.Do(func() {
		b, err := reportTemplateFS.ReadFile("report_template.html")
		if err != nil {
			reportTemplateErr = err
			return
		}
		reportTemplate, reportTemplateErr = template.New("report_template.html").Parse(string(b))
	})
	return reportTemplate, reportTemplateErr
}

var reportMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM, extension.Linkify),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
)

var reportMarkdownMu sync.Mutex

// RenderHTML converts a markdown result body into a standalone HTML page.
// A markdown that fails to convert falls back to an escaped <pre> block so
// the reader always sees something.
func RenderHTML(title string, markdownBody string) (string, error) {
	body := strings.TrimSpace(markdownBody)
	if body == "" {
		body = "(empty)"
	}

	var content bytes.Buffer
	reportMarkdownMu.Lock()
	err := reportMarkdown.Convert([]byte(body), &content)
	reportMarkdownMu.Unlock()
	if err != nil {
		escaped := template.HTMLEscapeString(body)
		content.Reset()
		content.WriteString("<pre>")
		content.WriteString(escaped)
		content.WriteString("</pre>")
	}

	data := reportTemplateData{
		AppDisplay: appinfo.Display(),
		Title:      strings.TrimSpace(title),
		Preheader:  buildPreheader(body),
		Body:       template.HTML(content.String()),
		Footer:     fmt.Sprintf("%s | %s", appinfo.Name, time.Now().UTC().Format(time.RFC3339)),
	}

	tmpl, err := getReportTemplate()
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	if err := tmpl.Execute(&out, data); err != nil {
		return "", err
	}
	return out.String(), nil
}

// buildPreheader condenses the body into the hidden preview line email
// clients show next to the subject.
func buildPreheader(body string) string {
	s := strings.TrimSpace(body)
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.Join(strings.Fields(s), " ")
	const max = 160
	if len(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return strings.TrimSpace(s[:i]) + "…"
		}
		n++
	}
	return s
}
