package scenes

import (
	"fmt"
	"strings"

	"iam-abuse-detector/internal/report"
	"iam-abuse-detector/internal/schema"
	"iam-abuse-detector/internal/tui/styles"

	tea "github.com/charmbracelet/bubbletea"
)

// actionFilters is the cycle of the [f] key. The empty action shows all.
var actionFilters = []schema.Action{
	"",
	schema.ActionLogin,
	schema.ActionResourceAccess,
	schema.ActionRoleChange,
}

// EventsScene displays the analyzed event log.
type EventsScene struct {
	all    schema.EventCollection
	shown  schema.EventCollection
	filter int
	failed bool // only failed logins
	cursor cursor
	width  int
	height int
}

// NewEventsScene creates the event log view. Events are shown in time order.
func NewEventsScene(events schema.EventCollection) *EventsScene {
	e := &EventsScene{
		all:    events.SortedByTime(),
		cursor: newCursor(),
	}
	e.apply()
	return e
}

// Shown returns the events passing the current filter.
func (e *EventsScene) Shown() schema.EventCollection {
	return e.shown
}

func (e *EventsScene) apply() {
	action := actionFilters[e.filter]
	e.shown = e.all.Filter(func(ev *schema.Event) bool {
		if e.failed && !ev.IsFailedLogin() {
			return false
		}
		return action == "" || ev.Action == action
	})
	e.cursor.clamp(len(e.shown))
}

// Update handles messages for the events scene.
func (e *EventsScene) Update(msg tea.Msg) (*EventsScene, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		e.width = msg.Width
		e.height = msg.Height
		e.cursor.resize(msg.Height, 12)

	case tea.KeyMsg:
		n := len(e.shown)
		switch msg.String() {
		case "up", "k":
			e.cursor.up()
		case "down", "j":
			e.cursor.down(n)
		case "pgup":
			e.cursor.pageUp()
		case "pgdown":
			e.cursor.pageDown(n)
		case "home", "g":
			e.cursor.home()
		case "end", "G":
			e.cursor.end(n)
		case "f":
			e.filter = (e.filter + 1) % len(actionFilters)
			e.apply()
		case "x":
			e.failed = !e.failed
			e.apply()
		}
	}
	return e, nil
}

func (e *EventsScene) filterLabel() string {
	label := "all actions"
	if a := actionFilters[e.filter]; a != "" {
		label = string(a)
	}
	if e.failed {
		label += ", failed logins only"
	}
	return label
}

// View renders the event table.
func (e *EventsScene) View() string {
	var b strings.Builder
	b.WriteString(styles.Title.Render("  Event Log"))
	b.WriteString("\n")
	b.WriteString(styles.Subtitle.Render(fmt.Sprintf("  Showing %d of %d events (%s)", len(e.shown), len(e.all), e.filterLabel())))
	b.WriteString("\n\n")

	if len(e.shown) == 0 {
		b.WriteString(styles.Muted.Render("  No events match the filter."))
		return b.String()
	}

	header := fmt.Sprintf("  %-8s %-19s %-12s %-15s %-9s %-15s %-8s %s",
		"ID", "Time", "User", "Action", "Role", "IP", "Location", "Success")
	b.WriteString(styles.TableHeader.Render(header))
	b.WriteString("\n")

	start, end := e.cursor.window(len(e.shown))
	for i := start; i < end; i++ {
		ev := e.shown[i]
		status := styles.StatusOK.Render("yes")
		if !ev.Success {
			status = styles.StatusError.Render("no ")
		}
		row := fmt.Sprintf("  %-8s %-19s %-12s %-15s %-9s %-15s %-8s ",
			truncate(ev.EventID, 8),
			ev.Timestamp.Format(report.TimeLayout),
			truncate(ev.UserID, 12),
			truncate(string(ev.Action), 15),
			truncate(ev.Role, 9),
			truncate(ev.IPAddress, 15),
			truncate(ev.Location, 8),
		)
		if i == e.cursor.pos {
			row = styles.TableRowSelected.Render(row)
		}
		b.WriteString(row + status)
		b.WriteString("\n")
	}

	b.WriteString(styles.Muted.Render(fmt.Sprintf("\n  %d-%d of %d  [f] Action filter  [x] Failed logins", start+1, end, len(e.shown))))
	return b.String()
}
