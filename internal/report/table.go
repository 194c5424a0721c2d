package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Render prints one row per stage followed by the run's terminal state.
func Render(w io.Writer, r *Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	style := table.StyleRounded
	style.Format.Footer = text.FormatDefault
	t.SetStyle(style)
	t.AppendHeader(table.Row{"Stage", "Status", "Elapsed", "Output", "Size"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Elapsed", Align: text.AlignRight},
		{Name: "Size", Align: text.AlignRight},
	})

	for _, st := range r.Stages {
		output, size := "", ""
		if st.Artifact != nil {
			output = st.Artifact.Path
			size = st.Artifact.Size
		}
		t.AppendRow(table.Row{st.Name, string(st.Status), st.Elapsed, output, size})
	}

	footer := r.State
	if r.FailedStage != "" {
		footer = fmt.Sprintf("%s at %s", r.State, r.FailedStage)
	}
	t.AppendFooter(table.Row{"run " + r.RunID, footer, r.Elapsed, "", ""})
	t.Render()
}
