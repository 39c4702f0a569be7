// Package testcases holds end-to-end conversation tests that run against a
// real chat model. They are skipped unless BRDAGENT_RUN_LIVE_TESTS=1 and a
// config.json with credentials exists at the repository root.
package testcases

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/tbxark/brdagent/store"
	"github.com/tbxark/brdagent/turn"
)

type Config struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
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

func InitChatModel(t *testing.T) *openai.ChatModel {
	if os.Getenv("BRDAGENT_RUN_LIVE_TESTS") != "1" {
		t.Skip("set BRDAGENT_RUN_LIVE_TESTS=1 to run live LLM tests")
		return nil
	}

	ctx := context.Background()
	conf, err := loadConfig("../config.json")
	if err != nil {
		t.Skipf("failed to load config: %v", err)
		return nil
	}
	if conf.APIKey == "" {
		t.Skip("config.json api_key is empty")
		return nil
	}
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  conf.APIKey,
		Model:   conf.Model,
		BaseURL: conf.BaseURL,
	})
	if err != nil {
		t.Fatalf("failed to init chat model: %v", err)
		return nil
	}
	return chatModel
}

// NewTestProcessor wires a processor over in-memory stores and no remote
// tools, plus the state store for assertions.
func NewTestProcessor(t *testing.T) (*turn.Processor, *store.MemoryStateStore) {
	chatModel := InitChatModel(t)
	if chatModel == nil {
		return nil, nil
	}
	states := store.NewMemoryStateStore()
	processor, err := turn.NewProcessor(chatModel, states, store.NewMemoryMessageStore(), nil)
	if err != nil {
		t.Fatalf("failed to build processor: %v", err)
	}
	return processor, states
}

func (c *Config) String() string {
	return fmt.Sprintf("Config{BaseURL:%q, Model:%q}", c.BaseURL, c.Model)
}
