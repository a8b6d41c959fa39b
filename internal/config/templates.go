package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# stockwatch configuration

[source]
# Where records live: "local" (in-process, persisted to storage) or "rest"
mode = "local"
# Collection endpoint of the backend for the rest mode
base_url = "http://localhost:8080/api/stocks"
# Per-request timeout
timeout = "10s"
# Attempts for idempotent requests
retry_attempts = 3

[refresh]
# Background refresh period
interval = "30s"
# Delay before the refresh that follows an add
post_add_delay = "1s"

[storage]
# Persistence backend: sqlite, redis, memory
backend = "sqlite"
# SQLite database file (defaults to watchlist.db next to this file)
# path = ""
redis_addr = "localhost:6379"
key = "stockwatch.watchlist"

[quotes]
# Scrape quote pages for prices in the local mode
enabled = true
# Quote page URL, {symbol} is replaced with the instrument symbol
url_template = "https://finance.yahoo.com/quote/{symbol}"
timeout = "10s"

[catalog]
# YAML instrument catalog used for search in the local mode (empty uses the built-in one)
path = ""

[logging]
# Level: trace, debug, info, warn, error, disabled
level = "info"
console = true
file = false
# file_path = ""

[tracing]
# Print spans to stderr
enabled = false

[ui]
# Enable colored output
color_enabled = true
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}

// Template returns the config.toml written on first run.
func Template() string {
	return configTemplate
}
