package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"netscope/internal/config"
	"netscope/internal/insight"
	"netscope/internal/logger"
	"netscope/internal/models"
	"netscope/internal/reporting"
	"netscope/internal/store"
)

type sessionArg struct {
	Session string `positional-arg-name:"SESSION" description:"session table name, see 'netscope sessions'"`
}

// SessionsCommand stores settings for the 'sessions' subcommand
type SessionsCommand struct {
	GlobalOpts *Options `no-flag:"true"`
	Count      bool     `long:"count" description:"also print the number of records in each session"`
}

func (c *SessionsCommand) Execute(args []string) error {
	ctx := context.Background()
	p, _, err := c.GlobalOpts.openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	sessions, err := p.ListSessions(ctx)
	if err != nil {
		return err
	}
	sort.Strings(sessions)

	for _, name := range sessions {
		if !c.Count {
			fmt.Println(name)
			continue
		}
		n, err := p.Store().Count(ctx, name)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%d\n", name, n)
	}
	return nil
}

// RecordsCommand stores settings for the 'records' subcommand
type RecordsCommand struct {
	GlobalOpts  *Options   `no-flag:"true"`
	Args        sessionArg `positional-args:"yes" required:"yes"`
	Protocol    string     `long:"protocol" description:"only records with this protocol label"`
	Source      string     `long:"source" description:"only records from this address"`
	Destination string     `long:"destination" description:"only records to this address"`
	Limit       int        `short:"n" long:"limit" default:"100" description:"maximum records to print, 0 for all"`
	Offset      int        `long:"offset" description:"skip this many records"`
	Payload     string     `long:"payload" default:"hex" choice:"hex" choice:"base64" choice:"text" choice:"none" description:"payload encoding to print"`
	JSON        bool       `long:"json" description:"print records as JSON lines"`
}

func (c *RecordsCommand) Execute(args []string) error {
	ctx := context.Background()
	p, _, err := c.GlobalOpts.openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	records, err := p.FetchRecords(ctx, c.Args.Session, c.filter())
	if err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		for _, r := range records {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}

	return c.writeTable(os.Stdout, records)
}

// writeTable prints one row per record. Without payloads loaded there is no
// size to report, so --payload none drops both payload columns.
func (c *RecordsCommand) writeTable(w io.Writer, records []models.PacketRecord) error {
	withPayload := c.Payload != "none"

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := "ID\tTIME\tTYPE\tSOURCE\tDESTINATION\tPROTOCOL"
	if withPayload {
		header += "\tSIZE\tPAYLOAD"
	}
	fmt.Fprintln(tw, header)
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s",
			r.ID, r.Timestamp.Format(time.RFC3339Nano), r.PacketType, r.Source, r.Destination, r.ProtocolLabel())
		if withPayload {
			fmt.Fprintf(tw, "\t%s\t%s", reporting.FormatBytes(int64(len(r.Payload.Raw))), c.payload(r))
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func (c *RecordsCommand) filter() store.Filter {
	return store.Filter{
		Protocol:    c.Protocol,
		Source:      c.Source,
		Destination: c.Destination,
		Limit:       c.Limit,
		Offset:      c.Offset,
		OmitPayload: c.Payload == "none" && !c.JSON,
	}
}

const maxPayloadColumn = 64

func (c *RecordsCommand) payload(r models.PacketRecord) string {
	var s string
	switch c.Payload {
	case "base64":
		s = r.Payload.Base64
	case "text":
		s = fmt.Sprintf("%q", r.Payload.Text)
	case "none":
		return ""
	default:
		s = r.Payload.Hex
	}
	if runes := []rune(s); len(runes) > maxPayloadColumn {
		s = string(runes[:maxPayloadColumn]) + "..."
	}
	return s
}

// StatsCommand stores settings for the 'stats' subcommand
type StatsCommand struct {
	GlobalOpts *Options   `no-flag:"true"`
	Args       sessionArg `positional-args:"yes" required:"yes"`
	Format     string     `short:"f" long:"format" default:"text" choice:"text" choice:"html" choice:"json" description:"output format"`
	Top        int        `long:"top" default:"10" description:"number of addresses to list, 0 for all"`
}

func (c *StatsCommand) Execute(args []string) error {
	ctx := context.Background()
	p, _, err := c.GlobalOpts.openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	snap, err := p.Snapshot(ctx, c.Args.Session)
	if err != nil {
		return err
	}
	if c.Format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	return reporting.WriteSessionReport(os.Stdout, snap, c.Format, c.Top)
}

// InsightCommand stores settings for the 'insight' subcommand
type InsightCommand struct {
	GlobalOpts *Options   `no-flag:"true"`
	Args       sessionArg `positional-args:"yes" required:"yes"`
	Model      string     `short:"m" long:"model" description:"model name (default from config)"`
	Records    int        `long:"records" description:"number of records in the prompt (default from config)"`
}

func (c *InsightCommand) Execute(args []string) error {
	ctx := context.Background()
	p, cfg, err := c.GlobalOpts.openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	icfg := insightConfig(cfg)
	if c.Model != "" {
		icfg.Model = c.Model
	}
	if c.Records > 0 {
		icfg.RecordLimit = c.Records
	}

	summary, err := insight.NewClient(icfg, p.Store(), logger.GetLogger()).Summarize(ctx, c.Args.Session)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%d of %d records, %s)\n\n%s\n", summary.Session, summary.Records, summary.Total, summary.Model, summary.Response)
	return nil
}

func insightConfig(cfg *config.Config) insight.Config {
	return insight.Config{
		URL:         cfg.Insight.URL,
		Model:       cfg.Insight.Model,
		Timeout:     time.Duration(cfg.Insight.TimeoutSeconds) * time.Second,
		RecordLimit: cfg.Insight.RecordLimit,
		CacheTTL:    time.Duration(cfg.Insight.CacheMinutes) * time.Minute,
	}
}
