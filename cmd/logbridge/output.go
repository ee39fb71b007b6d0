package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/logbridge/internal/model"
	"github.com/alfredjeanlab/logbridge/internal/presence"
	"github.com/alfredjeanlab/logbridge/internal/ui"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// formatRecordLine renders a record as one line: time, agent, content.
// Newlines in content are folded so each record stays on one line; width > 0
// truncates the content to fit.
func formatRecordLine(rec model.Record, width int) string {
	stamp := rec.ReceivedAt.Local().Format("15:04:05")
	content := strings.Join(strings.Fields(rec.Content), " ")
	if width > 0 {
		// "15:04:05 " + agent + " "
		width -= len(stamp) + len([]rune(rec.Agent)) + 2
		if width < 1 {
			width = 1
		}
		content = ui.Truncate(content, width)
	}
	return fmt.Sprintf("%s %s %s", ui.RenderMuted(stamp), ui.RenderAgent(rec.Agent), content)
}

func printRecords(w io.Writer, recs []model.Record, width int) {
	for _, rec := range recs {
		fmt.Fprintln(w, formatRecordLine(rec, width))
	}
}

func printAgentTable(w io.Writer, agents []presence.Entry, now time.Time) {
	if len(agents) == 0 {
		fmt.Fprintln(w, "No agents have logged yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "AGENT\tRECORDS\tLAST SEEN\tSTATE\tLAST MESSAGE")
	for _, a := range agents {
		state := "active"
		if a.Idle {
			state = "idle"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
			a.Agent,
			a.RecordCount,
			formatAgo(now.Sub(a.LastSeen)),
			state,
			ui.Truncate(a.LastPreview, 50),
		)
	}
	tw.Flush()
}

// formatAgo renders d as a coarse "N{s,m,h} ago" string.
func formatAgo(d time.Duration) string {
	switch {
	case d < time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
}
