package scenes

import (
	"fmt"
	"strings"

	"iam-abuse-detector/internal/detection"
	"iam-abuse-detector/internal/tui/styles"

	tea "github.com/charmbracelet/bubbletea"
)

// RulesScene shows the active rules and how often each fired.
type RulesScene struct {
	rules  []detection.RuleInfo
	counts map[string]int
	width  int
}

// NewRulesScene creates the rules view.
func NewRulesScene(rules []detection.RuleInfo, alerts []detection.Alert) *RulesScene {
	counts := make(map[string]int, len(rules))
	for _, a := range alerts {
		counts[a.RuleID]++
	}
	return &RulesScene{rules: rules, counts: counts}
}

// Count returns the number of alerts raised by rule id.
func (r *RulesScene) Count(id string) int {
	return r.counts[id]
}

// Update handles messages for the rules scene.
func (r *RulesScene) Update(msg tea.Msg) (*RulesScene, tea.Cmd) {
	if ws, ok := msg.(tea.WindowSizeMsg); ok {
		r.width = ws.Width
	}
	return r, nil
}

// View renders one box per rule.
func (r *RulesScene) View() string {
	var b strings.Builder
	b.WriteString(styles.Title.Render("  Detection Rules"))
	b.WriteString("\n")

	if len(r.rules) == 0 {
		b.WriteString(styles.Muted.Render("  All rules are disabled."))
		return b.String()
	}

	for _, rule := range r.rules {
		count := r.counts[rule.ID]
		hits := styles.StatusOK.Render("no alerts")
		if count > 0 {
			hits = styles.StatusError.Render(fmt.Sprintf("%d alerts", count))
		}

		lines := []string{
			styles.Section.Render(rule.Name) + "  " + hits,
			styles.Label.Render("ID") + " " + rule.ID,
			styles.Label.Render("Severity") + " " + styles.Severity(rule.Severity).Render(string(rule.Severity)),
			styles.Label.Render("Detects") + " " + rule.Description,
		}
		if rule.MITRE != nil {
			lines = append(lines, styles.Label.Render("MITRE")+" "+
				fmt.Sprintf("%s %s (%s)", rule.MITRE.TechniqueID, rule.MITRE.TacticName, rule.MITRE.TacticID))
		}
		b.WriteString(styles.Box.Render(strings.Join(lines, "\n")))
		b.WriteString("\n")
	}
	return b.String()
}
