package main

import (
	"fmt"

	"gopkg.in/urfave/cli.v1"
)

var purgeCommand = cli.Command{
	Name:      "purge",
	Usage:     "reclaim one generation (the oldest valid one if none named)",
	ArgsUsage: "[generation]",
	Action: func(c *cli.Context) error {
		b, err := newBoundary(c)
		if err != nil {
			return err
		}
		name := c.Args().First()
		if err := b.Purge(name); err != nil {
			return fmt.Errorf("purge: %w", err)
		}
		fmt.Println("purged", orLatest(name))
		return nil
	},
}

var purgeExpiredCommand = cli.Command{
	Name:  "purge-expired",
	Usage: "reclaim generations beyond max_snapshots or past expiration",
	Action: func(c *cli.Context) error {
		b, err := newBoundary(c)
		if err != nil {
			return err
		}
		if err := b.PurgeExpired(); err != nil {
			return fmt.Errorf("purge_expired: %w", err)
		}
		fmt.Println("purge_expired complete")
		return nil
	},
}

var purgeZombiesCommand = cli.Command{
	Name:  "purge-zombies",
	Usage: "reclaim orphaned backlinks under unfinished generations",
	Action: func(c *cli.Context) error {
		b, err := newBoundary(c)
		if err != nil {
			return err
		}
		if err := b.PurgeZombies(); err != nil {
			return fmt.Errorf("purge_zombies: %w", err)
		}
		fmt.Println("purge_zombies complete")
		return nil
	},
}

func orLatest(name string) string {
	if name == "" {
		return "oldest valid generation"
	}
	return name
}
