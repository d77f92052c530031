package main

import (
	"fmt"
	"io/ioutil"

	"gopkg.in/urfave/cli.v1"
)

var (
	generationFlag = cli.StringFlag{
		Name:  "generation",
		Usage: "generation name to open (latest valid one if omitted)",
	}
	outEntryFlag = cli.StringSliceFlag{
		Name:  "entry",
		Usage: "key=path pair; key's payload is written to path. Repeatable.",
	}
	maxPayloadFlag = cli.IntFlag{
		Name:  "max-payload",
		Usage: "largest payload size (bytes) to allocate per restored entry",
		Value: 64 * 1024 * 1024,
	}
)

var restoreCommand = cli.Command{
	Name:      "restore",
	Usage:     "open a generation and restore one or more keys to files",
	ArgsUsage: " ",
	Flags:     []cli.Flag{generationFlag, outEntryFlag, maxPayloadFlag},
	Action:    runRestore,
}

func runRestore(c *cli.Context) error {
	entries, err := parseKeyPathPairs(c.StringSlice(outEntryFlag.Name))
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("restore: at least one --entry key=path is required")
	}

	b, err := newBoundary(c)
	if err != nil {
		return err
	}

	if err := b.OpenGeneration(c.String(generationFlag.Name)); err != nil {
		return fmt.Errorf("open_generation: %w", err)
	}
	buf := make([]byte, c.Int(maxPayloadFlag.Name))
	for key, path := range entries {
		n, err := b.Restore(key, buf)
		if err != nil {
			return fmt.Errorf("restore(key=%d): %w", key, err)
		}
		if err := ioutil.WriteFile(path, buf[:n], 0644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	if err := b.CloseGeneration(); err != nil {
		return fmt.Errorf("close_generation: %w", err)
	}
	fmt.Printf("restored %d entries\n", len(entries))
	return nil
}
