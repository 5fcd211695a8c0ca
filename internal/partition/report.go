package partition

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ReportOptions controls diagnostic table rendering.
type ReportOptions struct {
	Title string
	// Plain selects an ASCII style for non-terminal output.
	Plain bool
}

// Report writes a human-readable table of batches to w.
func Report(w io.Writer, batches []Batch, opts ReportOptions) error {
	printer := message.NewPrinter(language.English)

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	if opts.Plain {
		tw.SetStyle(table.StyleDefault)
	} else {
		tw.SetStyle(table.StyleRounded)
	}
	if opts.Title != "" {
		tw.SetTitle(opts.Title)
	}
	tw.AppendHeader(table.Row{"Batch", "Begin", "End", "Reads", "Bases", "Overlaps", "Memory", "Closed by"})
	for _, b := range batches {
		tw.AppendRow(table.Row{
			b.Label(),
			strconv.Itoa(b.BeginID),
			strconv.Itoa(b.EndID),
			printer.Sprintf("%d", b.Reads),
			printer.Sprintf("%d", b.Bases),
			printer.Sprintf("%d", b.Overlaps),
			humanize.IBytes(uint64(max(b.Memory, 0))),
			string(b.Reason),
		})
	}
	summary := Summarize(batches)
	tw.AppendFooter(table.Row{
		fmt.Sprintf("%d batches", summary.Batches),
		"",
		"",
		printer.Sprintf("%d", summary.Reads),
		printer.Sprintf("%d", summary.Bases),
		printer.Sprintf("%d", summary.Overlaps),
		"max " + humanize.IBytes(uint64(max(summary.MaxMemory, 0))),
		"",
	})
	configs := make([]table.ColumnConfig, 0, 7)
	for col := 2; col <= 7; col++ {
		configs = append(configs, table.ColumnConfig{Number: col, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	tw.Render()
	return nil
}
