package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/pkg/errors"

	"github.com/splitscan/splitscan/catalog"
)

var (
	configPath string
	rescan     bool
	asJSON     bool
	verbose    bool
)

func init() {
	flag.StringVar(&configPath, "config", "", "TOML scan policy; defaults apply when omitted")
	flag.BoolVar(&rescan, "rescan", false, "force a full shortcut rescan")
	flag.BoolVar(&asJSON, "json", false, "emit the application list as JSON")
	flag.BoolVar(&verbose, "v", false, "enable debug logging")
	flag.Parse()
}

// passthroughResolver stands in for the host shell's shortcut service, which
// this tool does not ship. Plain executable paths still work through Add.
type passthroughResolver struct{}

func (passthroughResolver) Resolve(string) (catalog.ResolvedShortcut, error) {
	return catalog.ResolvedShortcut{}, errors.New("shortcut resolution requires the host shell service")
}

func main() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := catalog.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = catalog.LoadConfig(configPath); err != nil {
			log.Fatal(err)
		}
	}

	c := catalog.New(cfg, passthroughResolver{}, nil)

	// Positional arguments are added as explicit candidates.
	for _, path := range flag.Args() {
		if _, err := c.Add(path); err != nil {
			log.Fatal(err)
		}
	}

	result, err := c.List(nil, rescan)
	if err != nil {
		log.Fatal(err)
	}

	if asJSON {
		data, err := json.MarshalIndent(&result, "", "    ")
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%s\n", data)
		return
	}

	source := "rescan"
	if result.FromCache {
		source = "cache"
	}
	fmt.Printf("%d application(s) from %s\n\n", len(result.Applications), source)

	name := color.New(color.FgCyan, color.Bold)
	for _, app := range result.Applications {
		name.Printf("%-32s", app.Name)
		fmt.Printf("  %s", app.AbsolutePath)
		if app.Deletable {
			color.New(color.FgYellow).Printf("  (user-added)")
		}
		fmt.Println()
	}
}
