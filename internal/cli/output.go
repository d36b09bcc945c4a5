package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	distapp "metering-dist/internal/distribution/application"
)

var (
	boldGreen  = color.New(color.FgGreen, color.Bold).SprintFunc()
	boldYellow = color.New(color.FgYellow, color.Bold).SprintFunc()
	boldRed    = color.New(color.FgRed, color.Bold).SprintFunc()
	cyan       = color.New(color.FgCyan).SprintFunc()
)

func printResult(w io.Writer, result *distapp.RunResult, out string) {
	diag := result.Diagnostics
	fmt.Fprintf(w, "%s %s (run %s)\n", boldGreen("Archive written:"), out, result.RunID)
	fmt.Fprintf(w, "  documents: %d, series: %d, routed: %d\n",
		result.Summary.Documents, result.Summary.SeriesExtracted, result.Summary.SeriesRouted)
	if len(result.Archive.Workbooks) == 0 {
		fmt.Fprintf(w, "  %s\n", boldYellow("no workbooks (nothing matched the registry)"))
	}
	for _, name := range result.Archive.Workbooks {
		fmt.Fprintf(w, "  %s %s\n", boldGreen("+"), name)
	}

	printList(w, boldYellow("Unmatched metering points"), diag.Unmatched())
	printList(w, boldYellow("Quality-flagged metering points"), diag.QualityFlagged())
	for _, e := range diag.DocumentErrors() {
		fmt.Fprintf(w, "%s %s: %s\n", boldRed("Document error"), e.Document, e.Error)
	}
	for _, e := range diag.WorkbookErrors() {
		fmt.Fprintf(w, "%s %s: %s\n", boldRed("Workbook error"), e.Workbook, e.Error)
	}
	for _, note := range diag.Notes() {
		fmt.Fprintf(w, "%s %s\n", cyan("note:"), note)
	}
}

func printList(w io.Writer, title string, ids []string) {
	if len(ids) == 0 {
		return
	}
	fmt.Fprintf(w, "%s (%d):\n", title, len(ids))
	for _, id := range ids {
		fmt.Fprintf(w, "  - %s\n", id)
	}
}
