package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

const (
	ExitOk    = 0
	ExitError = 1
)

func main() {
	opts := Options{}
	parser := flags.NewParser(&opts, flags.Default)

	commands := []struct {
		name, short, long string
		data              interface{}
	}{
		{"interfaces", "List capture interfaces", "", &InterfacesCommand{GlobalOpts: &opts}},
		{"capture", "Capture from an interface into a new session", "", &CaptureCommand{GlobalOpts: &opts}},
		{"watch", "Capture with a live dashboard, or watch an existing session", "", &WatchCommand{GlobalOpts: &opts}},
		{"replay", "Load a pcap or pcapng file into a new session", "", &ReplayCommand{GlobalOpts: &opts}},
		{"sessions", "List stored sessions", "", &SessionsCommand{GlobalOpts: &opts}},
		{"records", "Print the records of a session", "", &RecordsCommand{GlobalOpts: &opts}},
		{"stats", "Print IP, per-second and protocol statistics of a session", "", &StatsCommand{GlobalOpts: &opts}},
		{"insight", "Ask the configured model to summarise a session", "", &InsightCommand{GlobalOpts: &opts}},
	}
	for _, c := range commands {
		if _, err := parser.AddCommand(c.name, c.short, c.long, c.data); err != nil {
			panic(err)
		}
	}

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(ExitOk)
		}
		os.Exit(ExitError)
	}
}
