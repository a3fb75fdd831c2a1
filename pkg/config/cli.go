package config

import "strings"

// CLIConfig holds settings for the slactl operator tool.
type CLIConfig struct {
	APIBaseURL  string
	AdminToken  string
	DatabaseURL string
}

var cliDefaults = map[string]any{
	"api.url":      "http://localhost:4100",
	"admin.token":  "",
	"database.url": engineDefaults["database.url"],
}

// LoadCLIConfig reads slactl settings from the same sources as the engine.
func LoadCLIConfig(path string) (CLIConfig, error) {
	v, err := newViper(path, cliDefaults)
	if err != nil {
		return CLIConfig{}, err
	}
	return CLIConfig{
		APIBaseURL:  strings.TrimSpace(v.GetString("api.url")),
		AdminToken:  strings.TrimSpace(v.GetString("admin.token")),
		DatabaseURL: v.GetString("database.url"),
	}, nil
}
