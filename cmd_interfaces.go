package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"netscope/internal/discovery"
)

// InterfacesCommand stores settings for the 'interfaces' subcommand
type InterfacesCommand struct {
	GlobalOpts *Options `no-flag:"true"`
	JSON       bool     `long:"json" description:"print as JSON"`
}

func (c *InterfacesCommand) Execute(args []string) error {
	if _, err := c.GlobalOpts.load(); err != nil {
		return err
	}
	ifaces, err := discovery.List()
	if err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ifaces)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tINDEX\tMAC\tIPV4\tSTATE\tDESCRIPTION")
	for _, iface := range ifaces {
		state := "down"
		if iface.Up {
			state = "up"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n", iface.Name, iface.Index, iface.MAC, iface.IPv4, state, iface.Description)
	}
	return tw.Flush()
}
