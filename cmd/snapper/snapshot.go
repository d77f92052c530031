package main

import (
	"fmt"
	"io/ioutil"

	"gopkg.in/urfave/cli.v1"
)

var entryFlag = cli.StringSliceFlag{
	Name:  "entry",
	Usage: "key=path pair; the file at path is snapshotted under key. Repeatable.",
}

var snapshotCommand = cli.Command{
	Name:      "snapshot",
	Usage:     "take a new generational snapshot of one or more files",
	ArgsUsage: " ",
	Flags:     []cli.Flag{entryFlag},
	Action:    runSnapshot,
}

func runSnapshot(c *cli.Context) error {
	entries, err := parseKeyPathPairs(c.StringSlice(entryFlag.Name))
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("snapshot: at least one --entry key=path is required")
	}

	b, err := newBoundary(c)
	if err != nil {
		return err
	}

	if err := b.InitSnapshot(); err != nil {
		return fmt.Errorf("init_snapshot: %w", err)
	}
	for key, path := range entries {
		payload, err := ioutil.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if err := b.TakeSnapshot(key, payload); err != nil {
			return fmt.Errorf("take_snapshot(key=%d, %s): %w", key, path, err)
		}
	}
	if err := b.CommitSnapshot(); err != nil {
		return fmt.Errorf("commit_snapshot: %w", err)
	}
	fmt.Printf("committed %d entries\n", len(entries))
	return nil
}
