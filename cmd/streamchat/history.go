// ABOUTME: history subcommand reading the local transcript archive
// ABOUTME: Lists archived channels or prints one channel's transcript

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/2389/streamchat/internal/conversation"
	"github.com/2389/streamchat/internal/store"
)

func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	configPath := fs.String("config", getConfigPath(), "Path to config file")
	channelID := fs.String("channel", "", "Channel to print (lists channels when empty)")
	limit := fs.Int("limit", 50, "Number of most recent messages to print (0 for all)")
	plain := fs.Bool("plain", false, "Print bot markdown without terminal styling")
	deleteChannel := fs.Bool("delete", false, "Delete the channel's archived transcript")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.Archive.Path == "" {
		return fmt.Errorf("archive.path is not configured")
	}

	logger := setupLogger(cfg.Logging, os.Stderr)

	archive, err := store.NewSQLiteStore(cfg.Archive.Path)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer archive.Close()

	if *channelID == "" {
		return listChannels(ctx, os.Stdout, archive)
	}

	if *deleteChannel {
		if err := archive.DeleteChannel(ctx, *channelID); err != nil {
			return fmt.Errorf("deleting channel %s: %w", *channelID, err)
		}
		fmt.Printf("Deleted transcript of %s\n", *channelID)
		return nil
	}

	entries, err := archive.ListEntries(ctx, *channelID, *limit)
	if err != nil {
		return fmt.Errorf("reading transcript: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("No messages.")
		return nil
	}

	render := renderFunc(plainRenderer)
	if !*plain {
		render, err = glamourRenderer(100, logger)
		if err != nil {
			return err
		}
	}
	printTranscript(os.Stdout, render, entries)
	return nil
}

func listChannels(ctx context.Context, w io.Writer, archive *store.SQLiteStore) error {
	channels, err := archive.ListChannels(ctx)
	if err != nil {
		return fmt.Errorf("listing channels: %w", err)
	}
	if len(channels) == 0 {
		fmt.Fprintln(w, "No archived channels.")
		return nil
	}

	fmt.Fprintf(w, "%-40s %8s  %s\n", "CHANNEL", "MESSAGES", "LAST ACTIVE")
	for _, c := range channels {
		fmt.Fprintf(w, "%-40s %8d  %s\n", truncate(c.ChannelID, 40), c.Entries, c.LastAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

// printTranscript writes archived entries in order.
func printTranscript(w io.Writer, render renderFunc, entries []conversation.Entry) {
	for _, e := range entries {
		switch e := e.(type) {
		case *conversation.UserMessage:
			fmt.Fprintf(w, "%s %s\n", color.HiBlackString(e.Time.Local().Format("15:04")),
				color.New(color.FgGreen, color.Bold).Sprint("you:"))
			fmt.Fprintln(w, e.Text)

		case *conversation.BotMessage:
			fmt.Fprintf(w, "%s %s\n", color.HiBlackString(e.Time.Local().Format("15:04")),
				color.New(color.FgCyan, color.Bold).Sprint("bot:"))
			if text := e.DisplayText(); text != "" {
				fmt.Fprint(w, render(text))
			}
			for _, line := range describeTemplate(e.Message.Template) {
				fmt.Fprintln(w, color.HiBlackString("  "+line))
			}

		case *conversation.ErrorMessage:
			fmt.Fprintf(w, "%s %s %s (%q)\n", color.HiBlackString(e.Time.Local().Format("15:04")),
				color.RedString("[error]"), e.Err, truncate(e.RequestText, 40))
		}
		fmt.Fprintln(w)
	}
}
