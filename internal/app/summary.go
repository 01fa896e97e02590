package app

import (
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/vk/buildgridgo/internal/scheduler"
)

// renderSummary prints the per-module disposition table at the end of a run.
func (a *App) renderSummary(results []scheduler.Result) {
	tw := table.NewWriter()
	tw.SetOutputMirror(a.outW)
	tw.AppendHeader(table.Row{"Module", "State", "Detail"})

	for _, res := range results {
		detail := ""
		switch {
		case res.SkippedBy != "":
			detail = "skipped: dependency chain includes failed module " + res.SkippedBy
		case res.Err != nil:
			detail = res.Err.Error()
		}
		tw.AppendRow(table.Row{res.Module, res.State.String(), detail})
	}
	tw.Render()
}
