// Package report renders detection results for people: a console report,
// a CSV export and an HTML results page.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"iam-abuse-detector/internal/detection"
	"iam-abuse-detector/internal/schema"
	"iam-abuse-detector/internal/tui/styles"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// TimeLayout is the timestamp layout used in every rendered output.
const TimeLayout = "2006-01-02 15:04:05"

// NoAlertsMessage is printed when a run produced no alerts.
const NoAlertsMessage = "No suspicious activity detected."

// EvidenceColumns are the event fields shown for each piece of evidence.
var EvidenceColumns = []string{"event_id", "timestamp", "action", "ip_address", "location", "role"}

// SummaryRow counts alerts for one (rule, severity) pair.
type SummaryRow struct {
	Rule     string             `json:"rule"`
	Severity detection.Severity `json:"severity"`
	Count    int                `json:"count"`
}

// Summarize counts alerts per (rule, severity), most frequent first.
// Ties are ordered by rule name.
func Summarize(alerts []detection.Alert) []SummaryRow {
	type key struct {
		rule     string
		severity detection.Severity
	}
	counts := make(map[key]int)
	for _, a := range alerts {
		counts[key{a.Rule, a.Severity}]++
	}

	rows := make([]SummaryRow, 0, len(counts))
	for k, n := range counts {
		rows = append(rows, SummaryRow{Rule: k.rule, Severity: k.severity, Count: n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		if rows[i].Rule != rows[j].Rule {
			return rows[i].Rule < rows[j].Rule
		}
		return rows[i].Severity < rows[j].Severity
	})
	return rows
}

// EvidenceRows joins an alert's evidence ids back to their events and
// returns one row per event in EvidenceColumns order.
func EvidenceRows(alert detection.Alert, events schema.EventCollection) [][]string {
	matched := events.Lookup(alert.EvidenceEventIDs)
	rows := make([][]string, 0, len(matched))
	for _, e := range matched {
		rows = append(rows, []string{
			e.EventID,
			e.Timestamp.Format(TimeLayout),
			string(e.Action),
			e.IPAddress,
			e.Location,
			e.Role,
		})
	}
	return rows
}

// ConsoleOptions controls console rendering.
type ConsoleOptions struct {
	Color bool
}

// Console writes the alert report for a terminal.
type Console struct {
	w     io.Writer
	color bool
}

// NewConsole creates a console report writer.
func NewConsole(w io.Writer, opts ConsoleOptions) *Console {
	return &Console{w: w, color: opts.Color}
}

func (c *Console) paint(style lipgloss.Style, s string) string {
	if !c.color {
		return s
	}
	return style.Render(s)
}

// Write renders the summary and one block per alert with its evidence.
func (c *Console) Write(alerts []detection.Alert, events schema.EventCollection) error {
	var b strings.Builder

	b.WriteString(c.paint(styles.Title, "=== IAM Abuse Detector ==="))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Total events analyzed: %d\n", len(events))

	if len(alerts) == 0 {
		b.WriteString("\n")
		b.WriteString(c.paint(styles.StatusOK, NoAlertsMessage))
		b.WriteString("\n")
		_, err := io.WriteString(c.w, b.String())
		return err
	}

	b.WriteString("\n")
	b.WriteString(c.paint(styles.Section, "ALERT SUMMARY"))
	b.WriteString("\n")
	summary := make([][]string, 0)
	for _, row := range Summarize(alerts) {
		summary = append(summary, []string{row.Rule, string(row.Severity), fmt.Sprint(row.Count)})
	}
	b.WriteString(c.table([]string{"rule", "severity", "count"}, summary))
	b.WriteString("\n")

	b.WriteString("\n")
	b.WriteString(c.paint(styles.Section, "DETAILED ALERT REPORT"))
	b.WriteString("\n")

	for i, a := range alerts {
		b.WriteString("\n")
		b.WriteString(strings.Repeat("=", 60))
		b.WriteString("\n")
		b.WriteString(c.paint(styles.Title.MarginBottom(0), fmt.Sprintf("ALERT #%d", i+1)))
		b.WriteString("\n")
		c.field(&b, "Rule", a.Rule)
		c.field(&b, "Severity", c.paint(styles.Severity(a.Severity), string(a.Severity)))
		c.field(&b, "User", a.UserID)
		c.field(&b, "Time", a.Timestamp.Format(TimeLayout))
		c.field(&b, "Details", a.Details)

		b.WriteString("\nEvidence Events:\n")
		b.WriteString(c.table(EvidenceColumns, EvidenceRows(a, events)))
		b.WriteString("\n")
	}

	_, err := io.WriteString(c.w, b.String())
	return err
}

func (c *Console) field(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "%-9s: %s\n", label, value)
}

func (c *Console) table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if !c.color {
				return lipgloss.NewStyle().Padding(0, 1)
			}
			if row == table.HeaderRow {
				return styles.TableHeader
			}
			return styles.TableCell
		})
	if c.color {
		t = t.BorderStyle(styles.Muted)
	}
	return t.Render()
}
