package report

import (
	"embed"
	"html/template"
	"io"
	"strings"
	"time"

	"iam-abuse-detector/internal/detection"
	"iam-abuse-detector/internal/schema"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"fmtTime":  func(t time.Time) string { return t.Format(TimeLayout) },
	"inc":      func(i int) int { return i + 1 },
	"join":     strings.Join,
	"severity": func(s detection.Severity) string { return strings.ToLower(string(s)) },
}).ParseFS(templateFS, "templates/*.html"))

// AlertView is an alert with its evidence rows joined in.
type AlertView struct {
	detection.Alert
	Evidence [][]string
}

// Results is the data rendered on the results page.
type Results struct {
	Filename        string
	EventCount      int
	Alerts          []AlertView
	Summary         []SummaryRow
	Events          schema.EventCollection
	EvidenceColumns []string
}

// NewResults prepares alerts and events for rendering.
func NewResults(filename string, alerts []detection.Alert, events schema.EventCollection) Results {
	views := make([]AlertView, 0, len(alerts))
	for _, a := range alerts {
		views = append(views, AlertView{Alert: a, Evidence: EvidenceRows(a, events)})
	}
	return Results{
		Filename:        filename,
		EventCount:      len(events),
		Alerts:          views,
		Summary:         Summarize(alerts),
		Events:          events,
		EvidenceColumns: EvidenceColumns,
	}
}

// RenderHTML renders the results page.
func RenderHTML(w io.Writer, r Results) error {
	return templates.ExecuteTemplate(w, "results.html", r)
}

// RenderIndex renders the upload form. errMsg is shown above the form when set.
func RenderIndex(w io.Writer, errMsg string) error {
	return templates.ExecuteTemplate(w, "index.html", struct{ Error string }{errMsg})
}
