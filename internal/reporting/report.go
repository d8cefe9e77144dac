// Package reporting renders session aggregates for terminals and browsers,
// and formats records into the prompt sent to the insight model.
package reporting

import (
	"fmt"
	"html"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"netscope/internal/analysis"
	"netscope/internal/models"
	"netscope/internal/pipeline"
)

// AnalystPreamble starts every insight prompt.
const AnalystPreamble = "Analyze the Data like a senior data analyst:"

// WriteSessionReport renders snap to w. Supported formats are "text" and
// "html".
func WriteSessionReport(w io.Writer, snap *pipeline.Snapshot, format string, topN int) error {
	switch format {
	case "text", "":
		return writeText(w, snap, topN)
	case "html":
		return writeHTML(w, snap, topN)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeText(w io.Writer, snap *pipeline.Snapshot, topN int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Session:\t%s\n", snap.Session)
	if snap.CapturedFrom != "" {
		fmt.Fprintf(tw, "Capturing from:\t%s\n", snap.CapturedFrom)
	}
	fmt.Fprintf(tw, "Records:\t%d\n", snap.Records)
	fmt.Fprintf(tw, "Packet types:\t%s\n", formatPacketTypes(snap.PacketTypes))
	fmt.Fprintf(tw, "Rate:\tmean %.1f pps, median %.1f, p95 %.1f, max %.0f over %d s\n",
		snap.Rate.Mean, snap.Rate.Median, snap.Rate.P95, snap.Rate.Max, snap.Rate.Seconds)

	fmt.Fprintln(tw, "\nADDRESS\tSOURCE\tDESTINATION\t")
	for _, t := range analysis.TopTalkers(snap.IPStats, topN) {
		fmt.Fprintf(tw, "%s\t%d\t%d\t\n", t.Address, t.SourceCount, t.DestinationCount)
	}

	fmt.Fprintln(tw, "\nPROTOCOL\tCOUNT\t")
	for _, p := range analysis.SortedProtocols(snap.Protocols) {
		fmt.Fprintf(tw, "%s\t%d\t\n", p.Protocol, p.Count)
	}

	fmt.Fprintln(tw, "\nSECOND\tPACKETS\t")
	for _, b := range snap.PerSecond {
		fmt.Fprintf(tw, "%s\t%d\t\n", b.Time, b.Count)
	}

	if len(snap.Alerts) > 0 {
		fmt.Fprintln(tw, "\nTIME\tALERT\tSOURCE\tMESSAGE\t")
		for _, a := range snap.Alerts {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", a.Timestamp.Format("15:04:05"), a.Type, a.Source, a.Message)
		}
	}
	return tw.Flush()
}

func formatPacketTypes(types map[models.PacketType]int) string {
	if len(types) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(types))
	for k := range types {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, types[models.PacketType(k)]))
	}
	return strings.Join(parts, " ")
}

func writeHTML(w io.Writer, snap *pipeline.Snapshot, topN int) error {
	var b strings.Builder
	title := html.EscapeString(snap.Session)

	fmt.Fprintf(&b, `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>netscope Session Report - %s</title>
    <style>
        body { font-family: sans-serif; margin: 20px; color: #333; }
        h1, h2 { color: #2c3e50; }
        table { width: 100%%; border-collapse: collapse; margin-bottom: 20px; }
        th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
        th { background-color: #f2f2f2; }
        tr:nth-child(even) { background-color: #f9f9f9; }
        .summary { background: #eef; padding: 15px; border-radius: 5px; margin-bottom: 20px; }
        .alert { color: #d9534f; font-weight: bold; }
    </style>
</head>
<body>
    <h1>netscope Session Report</h1>
    <div class="summary">
        <p><strong>Session:</strong> %s</p>
        <p><strong>Generated:</strong> %s</p>
        <p><strong>Records:</strong> %d</p>
        <p><strong>Peak rate:</strong> %.0f pps</p>
    </div>
`, title, title, time.Now().Format(time.RFC1123), snap.Records, snap.Rate.Max)

	b.WriteString("    <h2>Top Talkers</h2>\n    <table>\n        <thead><tr><th>IP Address</th><th>As Source</th><th>As Destination</th></tr></thead>\n        <tbody>\n")
	for _, t := range analysis.TopTalkers(snap.IPStats, topN) {
		fmt.Fprintf(&b, "            <tr><td>%s</td><td>%d</td><td>%d</td></tr>\n",
			html.EscapeString(t.Address), t.SourceCount, t.DestinationCount)
	}
	b.WriteString("        </tbody>\n    </table>\n")

	b.WriteString("    <h2>Protocols</h2>\n    <table>\n        <thead><tr><th>Protocol</th><th>Packets</th></tr></thead>\n        <tbody>\n")
	for _, p := range analysis.SortedProtocols(snap.Protocols) {
		fmt.Fprintf(&b, "            <tr><td>%s</td><td>%d</td></tr>\n", html.EscapeString(p.Protocol), p.Count)
	}
	b.WriteString("        </tbody>\n    </table>\n")

	b.WriteString("    <h2>Alerts</h2>\n    <table>\n        <thead><tr><th>Time</th><th>Type</th><th>Source</th><th>Message</th></tr></thead>\n        <tbody>\n")
	if len(snap.Alerts) == 0 {
		b.WriteString("            <tr><td colspan=\"4\">No alerts for this session.</td></tr>\n")
	}
	for _, a := range snap.Alerts {
		fmt.Fprintf(&b, "            <tr><td>%s</td><td class=\"alert\">%s</td><td>%s</td><td>%s</td></tr>\n",
			a.Timestamp.Format("15:04:05"), a.Type, html.EscapeString(a.Source), html.EscapeString(a.Message))
	}
	b.WriteString("        </tbody>\n    </table>\n</body>\n</html>\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// AnalystPrompt formats records one per line under AnalystPreamble.
func AnalystPrompt(records []models.PacketRecord) string {
	var b strings.Builder
	b.WriteString(AnalystPreamble)
	b.WriteString("\n")
	for i, r := range records {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Timestamp: %s, Packet Type: %s, Source: %s, Destination: %s, Protocol: %s, Payload (String): %s",
			r.FormatTimestamp(), r.PacketType, r.Source, r.Destination, r.ProtocolLabel(), r.Payload.Text)
	}
	return b.String()
}

// FormatBytes renders a byte count with a binary unit.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
