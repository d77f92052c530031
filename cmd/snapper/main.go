// Command snapper is a CLI front-end driving one Engine instance
// through the boundary package, the same relationship cmd/geth's
// subcommands have to one node instance.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/urfave/cli.v1"

	"github.com/ottergen/snapper/boundary"
	"github.com/ottergen/snapper/clock"
	"github.com/ottergen/snapper/config"
	"github.com/ottergen/snapper/engine"
	"github.com/ottergen/snapper/vfs"
)

var (
	rootFlag = cli.StringFlag{
		Name:  "root",
		Usage: "engine root directory",
		Value: ".",
	}
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "path to a TOML config file (defaults used if omitted)",
	}
	verboseFlag = cli.BoolFlag{
		Name:  "verbose",
		Usage: "enable verbose logging of engine decisions",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "snapper"
	app.Usage = "generational snapshot/restore/purge storage engine"
	app.Flags = []cli.Flag{rootFlag, configFlag, verboseFlag}
	app.Commands = []cli.Command{
		snapshotCommand,
		restoreCommand,
		purgeCommand,
		purgeExpiredCommand,
		purgeZombiesCommand,
		listCommand,
		statsCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newBoundary builds one Engine + Boundary pair rooted at the --root
// flag, loading config from --config (or Defaults if absent). The
// engine's in-memory state (open generation, in-memory archive) only
// lives for the duration of one process, so `snapshot` and `restore`
// each drive a full init/take.../commit or open/restore.../close cycle
// within a single invocation rather than spreading a session across
// separate CLI calls.
func newBoundary(c *cli.Context) (*boundary.Boundary, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	root := vfs.NewOS(c.GlobalString(rootFlag.Name))
	eng, err := engine.New(root, cfg, clock.Real())
	if err != nil {
		return nil, fmt.Errorf("constructing engine: %w", err)
	}
	return boundary.New(eng, cfg.BufSize), nil
}

// loadConfig resolves --config (or Defaults) and applies --verbose,
// shared by every subcommand that needs a Config without necessarily
// constructing a full Engine (e.g. list's read-only directory scan).
func loadConfig(c *cli.Context) (config.Config, error) {
	var src config.Source
	if path := c.GlobalString(configFlag.Name); path != "" {
		src = config.TOMLSource{Path: path}
	} else {
		src = config.Static(config.Defaults())
	}
	cfg, err := src.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	if c.GlobalBool(verboseFlag.Name) {
		cfg.Verbose = true
	}
	return cfg, nil
}

// parseKeyPathPairs parses repeated "key=path" flag values shared by
// the snapshot and restore commands.
func parseKeyPathPairs(raw []string) (map[uint64]string, error) {
	entries := make(map[uint64]string, len(raw))
	for _, e := range raw {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed --entry %q, want key=path", e)
		}
		key, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed key in --entry %q: %w", e, err)
		}
		entries[key] = parts[1]
	}
	return entries, nil
}
