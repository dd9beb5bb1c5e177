package export

import (
	"fmt"
	"strings"

	"github.com/szaher/mdtboard/internal/discussion"
)

// renderMarkdown produces the operator-facing report for a record.
func renderMarkdown(rec *discussion.Record) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Discussion %s\n\n", rec.ID)
	fmt.Fprintf(&b, "- State: %s\n", rec.State)
	fmt.Fprintf(&b, "- Participants: %s\n", strings.Join(rec.Participants, ", "))
	fmt.Fprintf(&b, "- Started: %s\n", rec.StartedAt.Format("2006-01-02 15:04:05 MST"))
	if !rec.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "- Finished: %s\n", rec.FinishedAt.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintf(&b, "- Rounds completed: %d\n", rec.RoundsCompleted)
	if rec.LastError != "" {
		fmt.Fprintf(&b, "- Last error: %s\n", rec.LastError)
	}

	b.WriteString("\n## Case\n\n")
	b.WriteString(rec.CaseText)
	b.WriteString("\n")
	if rec.Question != "" {
		fmt.Fprintf(&b, "\n**Question:** %s\n", rec.Question)
	}

	for _, round := range rec.Rounds {
		fmt.Fprintf(&b, "\n## %s\n", title(round.Label))
		for _, c := range round.Contributions {
			fmt.Fprintf(&b, "\n### %s\n\n", c.Participant)
			if c.Succeeded {
				b.WriteString(c.Text)
				b.WriteString("\n")
			} else {
				fmt.Fprintf(&b, "*No contribution: %s*\n", c.Err)
			}
		}
	}

	if len(rec.Interventions) > 0 {
		b.WriteString("\n## Interventions\n")
		for _, iv := range rec.Interventions {
			fmt.Fprintf(&b, "\n- **%s** (%s)", iv.Kind, iv.Status)
			if iv.Payload.Question != "" {
				fmt.Fprintf(&b, ": %s", iv.Payload.Question)
			}
			if iv.Payload.Information != "" {
				fmt.Fprintf(&b, ": %s", iv.Payload.Information)
			}
			if iv.Response != "" {
				fmt.Fprintf(&b, "\n  - Response: %s", iv.Response)
			}
			if iv.Err != "" {
				fmt.Fprintf(&b, "\n  - Error: %s", iv.Err)
			}
			b.WriteString("\n")
		}
	}

	if rec.Decision != "" {
		b.WriteString("\n## Decision\n\n")
		b.WriteString(rec.Decision)
		b.WriteString("\n")
	}

	if q := rec.Quality; q != nil {
		b.WriteString("\n## Quality\n\n")
		fmt.Fprintf(&b, "- Discussion depth: %.1f/10\n", q.DiscussionDepth)
		fmt.Fprintf(&b, "- Perspective diversity: %.1f/10\n", q.PerspectiveDiversity)
		fmt.Fprintf(&b, "- Logic consistency: %.1f/10\n", q.LogicConsistency)
		fmt.Fprintf(&b, "- Overall: %.1f/10\n", q.Overall)
		for _, issue := range q.Issues {
			fmt.Fprintf(&b, "- Issue: %s\n", issue)
		}
	}

	return b.String()
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
