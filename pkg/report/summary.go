package report

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"lstqc/internal/models"
)

// Totals counts outcomes by status
type Totals struct {
	Written int
	Missing int
	Failed  int
}

// Count tallies outcomes by status
func Count(outcomes []models.Outcome) Totals {
	var t Totals
	for _, o := range outcomes {
		switch o.Status {
		case models.StatusWritten:
			t.Written++
		case models.StatusMissing:
			t.Missing++
		case models.StatusFailed:
			t.Failed++
		}
	}
	return t
}

// Summary renders one table row per outcome followed by the totals
func Summary(outcomes []models.Outcome) string {
	w := table.NewWriter()
	w.SetStyle(table.StyleLight)
	w.Style().Format.Footer = text.FormatDefault

	w.AppendHeader(table.Row{"Subject", "Session", "Screenshot", "Status", "Path"})
	for _, o := range outcomes {
		w.AppendRow(table.Row{o.Session.Subject, o.Session.Session, string(o.Kind), string(o.Status), o.Path})
	}

	totals := Count(outcomes)
	w.AppendFooter(table.Row{
		"Total", "", len(outcomes),
		fmt.Sprintf("%d written, %d missing, %d failed", totals.Written, totals.Missing, totals.Failed),
		"",
	})
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, WidthMax: 100},
	})

	return w.Render()
}
