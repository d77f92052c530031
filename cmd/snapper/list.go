package main

import (
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/urfave/cli.v1"

	"github.com/ottergen/snapper/archive"
	"github.com/ottergen/snapper/clock"
	"github.com/ottergen/snapper/gendir"
	"github.com/ottergen/snapper/hashutil"
	"github.com/ottergen/snapper/vfs"
)

var listCommand = cli.Command{
	Name:  "list",
	Usage: "list every generation directory, its validity, and backlink count",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		root := vfs.NewOS(c.GlobalString(rootFlag.Name))
		hasher, err := hashutil.New(cfg.HashAlgorithm)
		if err != nil {
			return err
		}

		names, err := gendir.List(root)
		if err != nil {
			return err
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Generation", "Valid", "Entries", "Age"})

		now := clock.Real().Now()
		for _, name := range names {
			d := gendir.Open(root, name)
			valid := "no"
			entries := "-"
			if d.HasArchive() {
				if a, err := loadArchive(root, d, hasher); err == nil {
					valid = "yes"
					entries = strconv.Itoa(a.Len())
				}
			}
			age := "-"
			if dur, err := clock.Age(name, now); err == nil {
				age = dur.Round(1).String()
			}
			table.Append([]string{name, valid, entries, age})
		}
		table.Render()
		return nil
	},
}

func loadArchive(root vfs.FileSystem, d gendir.Dir, hasher hashutil.Hasher) (*archive.Archive, error) {
	f, err := root.OpenRead(d.ArchivePath())
	if err != nil {
		return nil, err
	}
	defer f.Close()
	raw := make([]byte, f.Size())
	if _, err := f.ReadAt(raw, 0); err != nil {
		return nil, err
	}
	return archive.Decode(raw, hasher)
}
