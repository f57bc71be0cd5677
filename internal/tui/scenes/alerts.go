package scenes

import (
	"fmt"
	"strings"

	"iam-abuse-detector/internal/detection"
	"iam-abuse-detector/internal/report"
	"iam-abuse-detector/internal/schema"
	"iam-abuse-detector/internal/tui/styles"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// AlertsScene lists the alerts of a run. Enter opens the evidence of the
// selected alert.
type AlertsScene struct {
	alerts []detection.Alert
	events schema.EventCollection
	cursor cursor
	detail bool
	width  int
	height int
}

// NewAlertsScene creates the alert list.
func NewAlertsScene(alerts []detection.Alert, events schema.EventCollection) *AlertsScene {
	return &AlertsScene{
		alerts: alerts,
		events: events,
		cursor: newCursor(),
	}
}

// Selected returns the alert under the cursor.
func (a *AlertsScene) Selected() (detection.Alert, bool) {
	if len(a.alerts) == 0 {
		return detection.Alert{}, false
	}
	return a.alerts[a.cursor.pos], true
}

// ShowingDetail reports whether the evidence view is open.
func (a *AlertsScene) ShowingDetail() bool {
	return a.detail
}

// Update handles messages for the alerts scene.
func (a *AlertsScene) Update(msg tea.Msg) (*AlertsScene, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.cursor.resize(msg.Height, 10)

	case tea.KeyMsg:
		if a.detail {
			switch msg.String() {
			case "esc", "enter", "backspace":
				a.detail = false
			}
			return a, nil
		}

		n := len(a.alerts)
		switch msg.String() {
		case "up", "k":
			a.cursor.up()
		case "down", "j":
			a.cursor.down(n)
		case "pgup":
			a.cursor.pageUp()
		case "pgdown":
			a.cursor.pageDown(n)
		case "home", "g":
			a.cursor.home()
		case "end", "G":
			a.cursor.end(n)
		case "enter":
			a.detail = n > 0
		}
	}
	return a, nil
}

// View renders the list or the evidence of the selected alert.
func (a *AlertsScene) View() string {
	if a.detail {
		return a.viewDetail()
	}

	var b strings.Builder
	b.WriteString(styles.Title.Render("  Alerts"))
	b.WriteString("\n")

	if len(a.alerts) == 0 {
		b.WriteString(styles.StatusOK.Render("  " + report.NoAlertsMessage))
		return b.String()
	}

	b.WriteString(styles.Subtitle.Render(fmt.Sprintf("  %d alerts in %d events", len(a.alerts), len(a.events))))
	b.WriteString("\n\n")

	header := fmt.Sprintf("  %-4s %-19s %-8s %-12s %s", "#", "Time", "Severity", "User", "Rule")
	b.WriteString(styles.TableHeader.Render(header))
	b.WriteString("\n")

	start, end := a.cursor.window(len(a.alerts))
	for i := start; i < end; i++ {
		b.WriteString(a.renderRow(i))
		b.WriteString("\n")
	}

	if len(a.alerts) > end-start {
		b.WriteString(styles.Muted.Render(fmt.Sprintf("\n  %d-%d of %d", start+1, end, len(a.alerts))))
	}
	return b.String()
}

func (a *AlertsScene) renderRow(i int) string {
	al := a.alerts[i]
	sev := styles.Severity(al.Severity).Render(fmt.Sprintf("%-8s", al.Severity))
	row := fmt.Sprintf("  %-4d %-19s %s %-12s %s",
		i+1,
		al.Timestamp.Format(report.TimeLayout),
		sev,
		truncate(al.UserID, 12),
		truncate(al.Rule, 50),
	)
	if i == a.cursor.pos {
		return styles.TableRowSelected.Render(row)
	}
	return row
}

func (a *AlertsScene) viewDetail() string {
	al, _ := a.Selected()

	var b strings.Builder
	b.WriteString(styles.Title.Render(fmt.Sprintf("  Alert #%d  %s", a.cursor.pos+1, al.Rule)))
	b.WriteString("\n")

	fields := [][2]string{
		{"Severity", styles.Severity(al.Severity).Render(string(al.Severity))},
		{"User", al.UserID},
		{"Time", al.Timestamp.Format(report.TimeLayout)},
		{"Details", al.Details},
		{"Rule ID", al.RuleID},
	}
	if rule, ok := detection.LookupRule(al.RuleID); ok && rule.MITRE != nil {
		fields = append(fields, [2]string{"MITRE", rule.MITRE.TechniqueID + " " + rule.MITRE.TacticName})
	}

	var lines []string
	for _, f := range fields {
		lines = append(lines, styles.Label.Render(f[0])+" "+f[1])
	}
	b.WriteString(styles.Box.Render(strings.Join(lines, "\n")))
	b.WriteString("\n\n")

	b.WriteString(styles.Section.Render("Evidence"))
	b.WriteString("\n")
	b.WriteString(styles.TableHeader.Render("  " + formatRow(report.EvidenceColumns)))
	b.WriteString("\n")
	for _, row := range report.EvidenceRows(al, a.events) {
		b.WriteString("  " + formatRow(row))
		b.WriteString("\n")
	}

	b.WriteString(styles.Muted.Render("\n  [esc] Back"))
	return lipgloss.NewStyle().MaxWidth(max(a.width, 80)).Render(b.String())
}

// formatRow pads evidence cells into fixed columns.
func formatRow(cells []string) string {
	widths := []int{10, 19, 16, 15, 10, 10}
	var parts []string
	for i, c := range cells {
		w := 12
		if i < len(widths) {
			w = widths[i]
		}
		parts = append(parts, fmt.Sprintf("%-*s", w, truncate(c, w)))
	}
	return strings.Join(parts, " ")
}
