package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"netscope/internal/capture"
	"netscope/internal/insight"
	"netscope/internal/logger"
	"netscope/internal/pipeline"
	"netscope/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
)

// CaptureCommand stores settings for the 'capture' subcommand
type CaptureCommand struct {
	GlobalOpts *Options      `no-flag:"true"`
	Interface  string        `short:"i" long:"interface" description:"interface to capture from" required:"yes"`
	Duration   time.Duration `short:"d" long:"duration" description:"stop after this long instead of waiting for Ctrl+C"`
}

func (c *CaptureCommand) Execute(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, _, err := c.GlobalOpts.openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	s, err := p.StartSession(ctx, c.Interface)
	if err != nil {
		return explainStartError(err)
	}
	fmt.Printf("Capturing on %s into %s (Ctrl+C to stop)\n", c.Interface, s.Name)

	var timeout <-chan time.Time
	if c.Duration > 0 {
		timeout = time.After(c.Duration)
	}
	select {
	case <-ctx.Done():
	case <-timeout:
	case <-s.Done():
	}
	return finish(p, s)
}

// WatchCommand stores settings for the 'watch' subcommand
type WatchCommand struct {
	GlobalOpts *Options `no-flag:"true"`
	Interface  string   `short:"i" long:"interface" description:"start capturing on this interface"`
	Session    string   `short:"s" long:"session" description:"watch an existing session instead of capturing"`
}

func (c *WatchCommand) Execute(args []string) error {
	if (c.Interface == "") == (c.Session == "") {
		return errors.New("specify exactly one of --interface or --session")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, cfg, err := c.GlobalOpts.openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	// Log lines would tear the dashboard; keep only errors on the terminal
	// unless they go to a file.
	if cfg.Logging.File == "" {
		logger.GetLogger().SetLevel(logger.Error)
	}

	var model tui.DashboardModel
	var session *capture.Session
	if c.Interface != "" {
		session, err = p.StartSession(ctx, c.Interface)
		if err != nil {
			return explainStartError(err)
		}
		model = tui.NewDashboardModel(session.Name, c.Interface, p.Snapshot, session.Stats)
	} else {
		model = tui.NewDashboardModel(c.Session, "", p.Snapshot, nil)
	}
	// One client for the whole dashboard so repeated presses hit its cache.
	model = model.WithInsight(insight.NewClient(insightConfig(cfg), p.Store(), logger.GetLogger()).Summarize)

	prog := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		logger.GetLogger().Error("Error running dashboard: %v", err)
	}

	if session != nil {
		return finish(p, session)
	}
	return nil
}

// ReplayCommand stores settings for the 'replay' subcommand
type ReplayCommand struct {
	GlobalOpts *Options `no-flag:"true"`
	Args       struct {
		File string `positional-arg-name:"FILE" description:"pcap or pcapng capture with Ethernet framing"`
	} `positional-args:"yes" required:"yes"`
}

func (c *ReplayCommand) Execute(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, _, err := c.GlobalOpts.openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	s, err := p.Replay(ctx, c.Args.File)
	if err != nil {
		return err
	}
	fmt.Printf("Replaying %s into %s\n", c.Args.File, s.Name)

	select {
	case <-ctx.Done():
	case <-s.Done():
	}
	return finish(p, s)
}

func finish(p *pipeline.Pipeline, s *capture.Session) error {
	if err := p.StopSession(s); err != nil {
		return fmt.Errorf("capture loop failed: %w", err)
	}
	stats := s.Stats()
	fmt.Printf("Session %s: %d frames read, %d records stored, %d dropped (%d non-IP, %d malformed, %d insert failures)\n",
		s.Name, stats.FramesRead, stats.RecordsStored, stats.Dropped(), stats.DecodeSkipped, stats.DecodeFailed, stats.InsertFailed)
	return nil
}

func explainStartError(err error) error {
	switch {
	case errors.Is(err, capture.ErrInterfaceNotFound):
		return fmt.Errorf("%w (run 'netscope interfaces' to list them)", err)
	case errors.Is(err, capture.ErrChannelOpenFailed):
		return fmt.Errorf("%w (capturing usually needs root or CAP_NET_RAW)", err)
	default:
		return err
	}
}
