// Package config handles configuration loading for streamchat.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files (chosen by extension) with
// environment variable expansion. Load applies defaults and validates.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	client:
//	  api_key: "${STREAMCHAT_API_KEY}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	client:
//	  envelope_delay: "50ms"
//	  retry_backoff: "200ms"
//	render:
//	  settle_delay: "100ms"
//
// # Configuration Sections
//
// Client (the SSE backend):
//
//	client:
//	  bot_provider_endpoint: "https://bot.example.com/"  # SSE endpoint derived as .../message/sse
//	  endpoint: ""                        # deprecated explicit SSE endpoint, wins when set
//	  api_key: "${STREAMCHAT_API_KEY}"    # sent as X-API-KEY
//	  debug_mode: false
//	  max_attempts: 3
//
// Channel:
//
//	channel:
//	  id: "support-42"
//	  show_debug_message: false
//
// Rendering:
//
//	render:
//	  settle_delay: "100ms"
//	  cache_size: 256
//
// Archive (optional transcript history):
//
//	archive:
//	  enabled: true
//	  path: "~/.local/share/streamchat/history.db"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
//	cfg, err := config.Load("/etc/streamchat/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
