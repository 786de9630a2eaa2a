// ABOUTME: Interactive chat loop over a streaming channel
// ABOUTME: Reads lines from stdin, sends them and prints the bot transcript as it streams

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/streamchat/internal/channel"
	"github.com/2389/streamchat/internal/config"
	"github.com/2389/streamchat/internal/conversation"
	"github.com/2389/streamchat/internal/markdown"
	"github.com/2389/streamchat/internal/store"
)

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func runChat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	configPath := fs.String("config", getConfigPath(), "Path to config file")
	channelID := fs.String("channel", "", "Channel id (overrides channel.id)")
	plain := fs.Bool("plain", false, "Print bot markdown without terminal styling")
	width := fs.Int("width", 100, "Word wrap width for rendered markdown")
	resume := fs.Int("resume", 0, "Seed the transcript with the last N archived messages")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *channelID != "" {
		cfg.Channel.ID = *channelID
	}

	logger := setupLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	render := renderFunc(plainRenderer)
	if !*plain {
		render, err = glamourRenderer(*width, logger)
		if err != nil {
			return err
		}
	}

	p := newPrinter(os.Stdout, render,
		markdown.Options{CacheSize: cfg.Render.CacheSize, Logger: logger},
		cfg.Render.SettleDelay, logger)
	defer p.stop()

	opts := []channel.Option{
		channel.WithLogger(logger),
		channel.WithObserver(p.observe),
	}

	if cfg.Archive.Enabled {
		archive, err := store.NewSQLiteStore(cfg.Archive.Path)
		if err != nil {
			return fmt.Errorf("opening archive: %w", err)
		}
		defer archive.Close()

		opts = append(opts, channel.WithArchive(archive))

		if *resume > 0 {
			entries, err := archive.ListEntries(ctx, cfg.Channel.ID, *resume)
			if err != nil {
				return fmt.Errorf("loading archived transcript: %w", err)
			}
			if len(entries) > 0 {
				fmt.Println(color.HiBlackString("(resuming after %d archived messages, see: streamchat history -channel %s)",
					len(entries), cfg.Channel.ID))
				p.skip(entries)
				opts = append(opts, channel.WithConversation(conversation.Seed(entries...)))
			}
		}
	}

	ch, err := channel.Open(ctx, *cfg, opts...)
	if err != nil {
		return err
	}
	defer ch.Close()

	color.New(color.FgCyan, color.Bold).Printf("streamchat %s\n", version)
	fmt.Printf("channel %s\n", ch.ID())
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	if err := run(ctx, ch, os.Stdin); err != nil {
		return err
	}

	fmt.Println("\nGoodbye!")
	return nil
}

// run reads lines from in until EOF, /quit or ctx is done.
func run(ctx context.Context, ch *channel.Channel, in io.Reader) error {
	lines := make(chan string)
	errCh := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errCh <- err
		} else {
			errCh <- io.EOF
		}
	}()

	for {
		fmt.Print("> ")

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-lines:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		switch {
		case input == "/quit" || input == "/exit" || input == "/q":
			return nil

		case input == "/help":
			printHelp()

		case input == "/reset":
			if err := ch.Reset(ctx); err != nil {
				fmt.Printf("%s %v\n", color.RedString("[error]"), err)
			} else {
				fmt.Println("Conversation reset.")
			}

		case input == "/meta":
			printMetadata(ch)

		case strings.HasPrefix(input, "/"):
			fmt.Printf("Unknown command %s. /help for commands.\n", input)

		default:
			err := ch.SendMessage(ctx, input)
			switch {
			case err == nil:
			case errors.Is(err, channel.ErrClosed), ctx.Err() != nil:
				return nil
			default:
				// Failed sends also land in the transcript as error entries.
				slog.Debug("send failed", "error", err)
			}
		}
		fmt.Println()
	}
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /reset         Reset the channel and clear the transcript")
	fmt.Println("  /meta          Show bot provider metadata")
	fmt.Println("  /help          Show this help")
	fmt.Println("  /quit          Exit")
}

func printMetadata(ch *channel.Channel) {
	md := ch.Metadata()
	if md == nil {
		fmt.Println("No metadata loaded.")
		return
	}
	fmt.Printf("name: %s\n", md.Name)
	for k, v := range md.Config {
		fmt.Printf("  %s: %v\n", k, v)
	}
}
