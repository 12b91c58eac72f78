package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

const (
	maxLineWidth   = 90
	truncatedWidth = 87
)

// row is one selectable line of the tree.
type row struct {
	text   string
	url    string
	isRepo bool
	urgent bool
	last   bool // last child of its parent
	parent bool // for PR rows: the owning repo is the last repo
}

// visibleRows flattens repositories with open pull requests into tree rows.
func visibleRows(snap Snapshot) []row {
	var repos []RepoState
	for _, r := range snap.Repos {
		if len(r.PRs) > 0 {
			repos = append(repos, r)
		}
	}

	var rows []row
	for i, r := range repos {
		lastRepo := i == len(repos)-1
		rows = append(rows, row{text: r.Line, url: r.URL, isRepo: true, urgent: r.Urgent, last: lastRepo})
		for j, pr := range r.PRs {
			rows = append(rows, row{text: pr.Line, url: pr.URL, last: j == len(r.PRs)-1, parent: lastRepo})
		}
	}
	return rows
}

func renderView(m Model) string {
	snap := m.snapshot
	var b strings.Builder

	title := "PR Monitor " + snap.State.Icon()
	if label := snap.State.Label(); label != "" {
		title += " " + label
	}
	b.WriteString(headerStyle.Foreground(stateColor(snap.State)).Render(title))
	b.WriteString("\n")

	var info []string
	if snap.User != "" {
		info = append(info, "user: "+snap.User)
	}
	filter := snap.Filter
	if filter == "" {
		filter = "(all)"
	}
	info = append(info, "filter: "+filter, "every "+snap.RefreshInterval.String())
	b.WriteString(infoStyle.Render(strings.Join(info, " │ ")))
	b.WriteString("\n")

	if snap.Notice != "" {
		b.WriteString(noticeStyle.Render("🔔 " + snap.Notice))
		b.WriteString("\n")
	}
	if snap.Error != "" {
		b.WriteString(errorStyle.Render(" " + truncate(snap.Error)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(renderTree(visibleRows(snap), m.cursor))

	b.WriteString(renderFooter(snap, m.status))

	if m.prompt != promptNone {
		b.WriteString("\n")
		b.WriteString(renderPrompt(m))
	}

	return b.String()
}

func renderTree(rows []row, cursor int) string {
	if len(rows) == 0 {
		return emptyStyle.Render("  (no open pull requests)") + "\n"
	}

	var b strings.Builder
	for i, r := range rows {
		var line string
		var style lipgloss.Style
		if r.isRepo {
			prefix := "├─"
			if r.last {
				prefix = "└─"
			}
			line = prefix + " " + r.text
			style = treeRepoStyle
			if r.urgent {
				style = treeUrgentRepoStyle
			}
		} else {
			childPrefix := "│  "
			if r.parent {
				childPrefix = "   "
			}
			prPrefix := "├─"
			if r.last {
				prPrefix = "└─"
			}
			line = childPrefix + prPrefix + " " + r.text
			style = treePRStyle
		}

		line = truncate(line)
		if i == cursor {
			style = selectedStyle
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func renderFooter(snap Snapshot, status string) string {
	updated := "never"
	if !snap.LastUpdate.IsZero() {
		updated = snap.LastUpdate.Local().Format("15:04:05")
	}
	parts := []string{"Last updated: " + updated}
	if snap.Summary != "" {
		parts = append(parts, snap.Summary)
	}
	if status != "" {
		parts = append(parts, status)
	}
	footer := strings.Join(parts, " │ ") +
		"\nr:refresh t:token f:filter d:delay ↑/↓:move enter:open q:quit"
	return footerStyle.Render(footer)
}

func renderPrompt(m Model) string {
	var label, value string
	switch m.prompt {
	case promptToken:
		label = "GitHub personal access token"
		value = strings.Repeat("•", len(m.input))
	case promptFilter:
		label = "Repository name filter (empty shows all)"
		value = string(m.input)
	case promptInterval:
		label = "Refresh every N minutes"
		value = string(m.input)
	}

	var b strings.Builder
	b.WriteString(promptStyle.Render(fmt.Sprintf("%s: %s▏", label, value)))
	b.WriteString("\n")
	if m.promptErr != "" {
		b.WriteString(errorStyle.Render(m.promptErr))
		b.WriteString("\n")
	}
	b.WriteString(emptyStyle.Render("enter:save esc:cancel"))
	return b.String()
}

func truncate(s string) string {
	if runewidth.StringWidth(s) > maxLineWidth {
		return runewidth.Truncate(s, truncatedWidth, "...")
	}
	return s
}
