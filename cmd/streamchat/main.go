// ABOUTME: Entry point for the streamchat terminal client
// ABOUTME: Dispatches chat, history, metadata and init subcommands

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
)

// Version is set by goreleaser at build time.
var version = "dev"

// getConfigPath returns the path to the client config file.
// Priority: STREAMCHAT_CONFIG env var > XDG_CONFIG_HOME/streamchat/config.yaml > ~/.config/streamchat/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("STREAMCHAT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "streamchat", "config.yaml")
}

// getDataPath returns the path to the streamchat data directory.
// Priority: XDG_DATA_HOME/streamchat > ~/.local/share/streamchat
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "streamchat")
}

func usage() {
	fmt.Println("Usage: streamchat <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  chat       Open the channel and chat interactively (default)")
	fmt.Println("  history    List archived channels or print one transcript")
	fmt.Println("  metadata   Fetch the bot provider metadata")
	fmt.Println("  init       Create a new config file interactively")
	fmt.Println("  version    Print the version")
}

func main() {
	cmd, args := "chat", os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch cmd {
	case "chat":
		err = runChat(ctx, args)
	case "history":
		err = runHistory(ctx, args)
	case "metadata":
		err = runMetadata(ctx, args)
	case "init":
		err = runInit()
	case "version":
		fmt.Printf("streamchat %s\n", version)
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
