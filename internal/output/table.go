package output

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/vulnverified/aegis/internal/engine"
)

// WriteTable renders each component's findings as a terminal table.
func WriteTable(w io.Writer, report *engine.Report, noColor bool) {
	rendered := 0

	if r := report.PortScan; r != nil && r.Outcome != nil {
		rendered++
		writeSection(w, "Open ports", []string{"Port", "Service", "Version", "Banner"}, portRows(r.Outcome), noColor)
	}
	if r := report.Subdomains; r != nil && r.Outcome != nil {
		rendered++
		writeSection(w, "Subdomains", []string{"Subdomain", "Evidence"}, subdomainRows(r.Outcome), noColor)
	}
	if r := report.OSINT; r != nil && r.Outcome != nil {
		rendered++
		writeSection(w, "Intelligence sources", []string{"Source", "Status", "Time", "Detail"}, sourceRows(r.Outcome), noColor)
	}

	if rendered == 0 {
		fmt.Fprintln(w, "\nNo findings.")
	}
	WriteSummary(w, report, noColor)
}

func portRows(out *engine.ScanOutcome) [][]string {
	rows := make([][]string, 0, len(out.Open))
	for _, p := range out.Open {
		banner, _, _ := strings.Cut(p.Banner, "\n")
		rows = append(rows, []string{
			strconv.Itoa(p.Port),
			p.Service,
			p.Version,
			truncate(strings.TrimSpace(banner), 40),
		})
	}
	return rows
}

func subdomainRows(out *engine.ProbeOutcome) [][]string {
	var rows [][]string
	for _, r := range out.Results {
		if !r.Present {
			continue
		}
		evidence := strings.Join(r.Addresses, ", ")
		if r.Scheme != "" {
			evidence = fmt.Sprintf("%s %d", r.Scheme, r.StatusCode)
		}
		rows = append(rows, []string{r.FQDN, truncate(evidence, 40)})
	}
	if rows == nil {
		for _, fqdn := range out.Present {
			rows = append(rows, []string{fqdn, ""})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i][0] < rows[j][0]
	})
	return rows
}

func sourceRows(out *engine.IntelOutcome) [][]string {
	names := make([]string, 0, len(out.Sources))
	for name := range out.Sources {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		res := out.Sources[name]
		detail := res.Error
		if data, ok := res.Data.(map[string]any); ok && detail == "" {
			detail = fmt.Sprintf("%d fields", len(data))
		}
		rows = append(rows, []string{
			name,
			string(res.Status),
			fmt.Sprintf("%dms", res.DurationMs),
			truncate(detail, 50),
		})
	}
	return rows
}

func writeSection(w io.Writer, title string, headers []string, rows [][]string, noColor bool) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, bold(title, noColor))
	if len(rows) == 0 {
		fmt.Fprintln(w, "  none")
		return
	}

	if noColor {
		writeSimpleTable(w, headers, rows)
		return
	}

	t := table.New().
		Headers(headers...).
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
			}
			return lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
		})

	for _, row := range rows {
		t.Row(row...)
	}

	fmt.Fprintln(w, t.Render())
}

func writeSimpleTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				fmt.Fprint(w, " | ")
			}
			fmt.Fprintf(w, "%-*s", widths[i], cell)
		}
		fmt.Fprintln(w)
	}

	writeRow(headers)
	for i, width := range widths {
		if i > 0 {
			fmt.Fprint(w, "-+-")
		}
		fmt.Fprint(w, strings.Repeat("-", width))
	}
	fmt.Fprintln(w)
	for _, row := range rows {
		writeRow(row)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
