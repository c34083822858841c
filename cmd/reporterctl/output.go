package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"
)

// printOutput renders v in the structured format selected by --output.
// Values are round-tripped through JSON so yaml output carries the same
// keys as the server's wire format (json tags, not Go field names).
func printOutput(v any) error {
	switch outputFmt {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var m any
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		return enc.Encode(m)
	default:
		return fmt.Errorf("unsupported output format %q (use json or yaml)", outputFmt)
	}
}

// printFields renders the detail view of a single object (a job snapshot,
// the queue health): one "Name: value" line per field, aligned.
func printFields(fields [][2]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	for _, f := range fields {
		fmt.Fprintf(w, "%s:\t%s\n", f[0], f[1])
	}
	w.Flush()
}

// printRows renders a list view (report history): an uppercase header row
// followed by one line per record.
func printRows(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(headers, "\t")))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
}

// clip bounds a table cell to max bytes, marking elided content with "...".
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - 3
	if cut < 1 {
		return s[:max]
	}
	return s[:cut] + "..."
}

// formatMillis renders a job duration for table cells. Sub-second jobs show
// milliseconds; longer ones round to a readable unit.
func formatMillis(ms int64) string {
	if ms <= 0 {
		return ""
	}
	d := time.Duration(ms) * time.Millisecond
	if d < time.Second {
		return d.String()
	}
	return d.Round(100 * time.Millisecond).String()
}
