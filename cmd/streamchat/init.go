// ABOUTME: init subcommand writing a starter config file
// ABOUTME: Prompts for the backend endpoint, channel and archive settings

package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("streamchat configuration setup")
	fmt.Println("==============================")
	fmt.Println()

	defaultConfigPath := getConfigPath()
	defaultArchivePath := filepath.Join(getDataPath(), "archive.db")

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Backend ---")
	endpoint := prompt(reader, "Bot provider endpoint", "http://localhost:8090")
	apiKey := prompt(reader, "API key (leave empty for none, ${VAR} is expanded)", "")

	fmt.Println("\n--- Channel ---")
	channelID := prompt(reader, "Channel id", uuid.NewString())
	showDebug := isYes(prompt(reader, "Show debug messages?", "no"))

	fmt.Println("\n--- Archive ---")
	archiveEnabled := isYes(prompt(reader, "Keep a local transcript archive?", "yes"))
	archivePath := defaultArchivePath
	if archiveEnabled {
		archivePath = prompt(reader, "SQLite archive path", defaultArchivePath)
	}

	fmt.Println("\n--- Logging ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "warn")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# streamchat configuration\n")
	cfg.WriteString("# Generated by streamchat init\n\n")

	cfg.WriteString("client:\n")
	cfg.WriteString(fmt.Sprintf("  bot_provider_endpoint: %q\n", endpoint))
	if apiKey != "" {
		cfg.WriteString(fmt.Sprintf("  api_key: %q\n", apiKey))
	}
	cfg.WriteString("  max_attempts: 3\n")
	cfg.WriteString("  envelope_delay: \"50ms\"\n")
	cfg.WriteString("  retry_backoff: \"200ms\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("channel:\n")
	cfg.WriteString(fmt.Sprintf("  id: %q\n", channelID))
	cfg.WriteString(fmt.Sprintf("  show_debug_message: %t\n", showDebug))
	cfg.WriteString("\n")

	cfg.WriteString("render:\n")
	cfg.WriteString("  settle_delay: \"100ms\"\n")
	cfg.WriteString("  cache_size: 256\n")
	cfg.WriteString("\n")

	cfg.WriteString("archive:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", archiveEnabled))
	cfg.WriteString(fmt.Sprintf("  path: %q\n", archivePath))
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", logFormat))

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if archiveEnabled {
		if err := os.MkdirAll(filepath.Dir(archivePath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start chatting:")
	fmt.Printf("  streamchat chat\n")

	return nil
}

func isYes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
