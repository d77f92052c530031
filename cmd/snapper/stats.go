package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/urfave/cli.v1"

	"github.com/ottergen/snapper/metrics"
)

// stats only sees metrics registered by commands run in its own
// process, since each CLI invocation is short-lived. It's chiefly
// useful from a host that embeds boundary.Boundary directly and calls
// this as a library function rather than shelling out.
var statsCommand = cli.Command{
	Name:  "stats",
	Usage: "print every registered engine counter/meter",
	Action: func(c *cli.Context) error {
		snapshot := metrics.DefaultRegistry.Snapshot()
		if len(snapshot) == 0 {
			fmt.Println("no metrics registered (run a snapshot/restore/purge first)")
			return nil
		}

		names := make([]string, 0, len(snapshot))
		for name := range snapshot {
			names = append(names, name)
		}
		sort.Strings(names)

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Metric", "Value"})
		for _, name := range names {
			table.Append([]string{name, fmt.Sprintf("%d", snapshot[name])})
		}
		table.Render()
		return nil
	},
}
