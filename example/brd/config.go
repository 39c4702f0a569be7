package main

import (
	"encoding/json"
	"os"
)

type MCPConfig struct {
	Endpoint     string `json:"endpoint"`
	AuthURL      string `json:"auth_url"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Bearer       string `json:"bearer"`
	CloudID      string `json:"cloud_id"`
	RefreshToken string `json:"refresh_token"`
}

type Config struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`

	// DatabasePath switches persistence from memory to SQLite when set.
	DatabasePath string `json:"database_path,omitempty"`

	// MCP enables remote tools when set.
	MCP *MCPConfig `json:"mcp,omitempty"`
}

func loadConfig(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var conf Config
	err = json.Unmarshal(file, &conf)
	if err != nil {
		return nil, err
	}
	return &conf, nil
}
