package config

import "time"

// TestConfig returns a config suitable for testing. Callers set
// Database.Path to a temporary file.
func TestConfig() *Config {
	cfg := defaultConfig()
	cfg.Database = DatabaseConfig{Timeout: 1 * time.Second}
	cfg.Identity = IdentityConfig{UserID: "tester"}
	cfg.Import = ImportConfig{HTTPTimeout: 5 * time.Second, AllowLocal: true}
	cfg.Server.Addr = "127.0.0.1:0"
	return cfg
}
