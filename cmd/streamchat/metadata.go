// ABOUTME: metadata subcommand querying the bot provider
// ABOUTME: Prints the provider name, annotations and decoded widget config

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"

	"github.com/2389/streamchat/internal/client"
)

func runMetadata(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("metadata", flag.ContinueOnError)
	configPath := fs.String("config", getConfigPath(), "Path to config file")
	asJSON := fs.Bool("json", false, "Print the widget config as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging, os.Stderr)

	cl, err := client.New(cfg.Client, client.WithLogger(logger))
	if err != nil {
		return err
	}
	defer cl.Close()

	md, err := cl.FetchMetadata(ctx)
	if err != nil {
		return fmt.Errorf("fetching metadata: %w", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(md.Config)
	}

	color.New(color.FgCyan, color.Bold).Println(md.Name)

	keys := make([]string, 0, len(md.Annotations))
	for k := range md.Annotations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == client.WidgetConfigAnnotation {
			continue
		}
		fmt.Printf("%s %s\n", color.HiBlackString(k+":"), md.Annotations[k])
	}

	if md.Config == nil {
		fmt.Println(color.HiBlackString("no widget config"))
		return nil
	}
	data, err := json.MarshalIndent(md.Config, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding widget config: %w", err)
	}
	fmt.Printf("%s\n%s\n", color.HiBlackString(client.WidgetConfigAnnotation+":"), data)
	return nil
}
