package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/tbxark/brdagent/jira"
	"github.com/tbxark/brdagent/mcp"
	"github.com/tbxark/brdagent/metadata"
	"github.com/tbxark/brdagent/stage"
	"github.com/tbxark/brdagent/store"
	"github.com/tbxark/brdagent/turn"
)

const localUser = "local"

func main() {
	conf := flag.String("config", "config.json", "path to config file")
	flag.Parse()
	config, err := loadConfig(*conf)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	err = startApp(context.Background(), config)
	if err != nil {
		log.Fatalf("start app: %v", err)
	}
}

func startApp(ctx context.Context, config *Config) error {
	slog.SetLogLoggerLevel(slog.LevelInfo)
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  config.APIKey,
		Model:   config.Model,
		BaseURL: config.BaseURL,
	})
	if err != nil {
		return err
	}

	var states store.StateStore = store.NewMemoryStateStore()
	var messages store.MessageStore = store.NewMemoryMessageStore()
	var creds store.CredentialStore
	if config.DatabasePath != "" {
		db, dbErr := store.NewSQLite(config.DatabasePath)
		if dbErr != nil {
			return dbErr
		}
		defer db.Close()
		states = db
		messages = db
		creds = db.Credentials()
	}

	var gateway turn.Gateway
	if config.MCP != nil {
		if creds == nil {
			memCreds := store.NewMemoryCredentialStore()
			memCreds.Put(localUser, &store.Credential{
				Bearer:       config.MCP.Bearer,
				CloudID:      config.MCP.CloudID,
				RefreshToken: config.MCP.RefreshToken,
			})
			creds = memCreds
		}
		client := mcp.NewClient(mcp.Config{
			Endpoint:     config.MCP.Endpoint,
			AuthURL:      config.MCP.AuthURL,
			ClientID:     config.MCP.ClientID,
			ClientSecret: config.MCP.ClientSecret,
		}, creds, mcp.NewMemorySessionStore())
		gateway = client
	}

	processor, err := turn.NewProcessor(cm, states, messages, gateway)
	if err != nil {
		return err
	}
	generator, err := jira.NewGenerator(cm)
	if err != nil {
		return err
	}

	projectID := uuid.NewString()
	first := stage.First()
	fmt.Println("Welcome! Let's define your project requirements.")
	fmt.Println(first.Question(first.Required, &metadata.Metadata{}))

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("you: ")
		input, rErr := reader.ReadString('\n')
		if rErr != nil {
			fmt.Println("input closed, exiting.")
			break
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if input == "/quit" {
			break
		}
		if key, file, ok := parseJiraCommand(input); ok {
			if jErr := createJiraProject(ctx, generator, gateway, key, file); jErr != nil {
				fmt.Printf("jira: %v\n", jErr)
			}
			continue
		}

		stream, tErr := processor.ProcessStream(ctx, projectID, localUser, input)
		if tErr != nil && stream == nil {
			return tErr
		}
		fmt.Print("\nassistant: ")
		if sErr := printStream(stream); sErr != nil {
			return sErr
		}
		fmt.Println("\n======")
	}
	return nil
}

func printStream(stream *schema.StreamReader[*turn.StreamEvent]) error {
	defer stream.Close()
	for {
		event, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch {
		case event.Error != "":
			fmt.Print(event.Error)
		case event.Done:
			fmt.Printf("\n[stage: %s]", event.Stage)
		default:
			fmt.Print(event.Token)
		}
	}
}

// parseJiraCommand recognizes "/jira KEY path/to/brd.md".
func parseJiraCommand(input string) (key, file string, ok bool) {
	if !strings.HasPrefix(input, "/jira ") {
		return "", "", false
	}
	parts := strings.Fields(input)
	if len(parts) != 3 {
		return "", "", false
	}
	return parts[1], parts[2], true
}

func createJiraProject(ctx context.Context, generator *jira.Generator, gateway turn.Gateway, key, file string) error {
	if gateway == nil {
		return fmt.Errorf("no tool server configured")
	}
	brd, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	payload, err := generator.Payload(ctx, string(brd), key)
	if err != nil {
		return err
	}
	resp, err := jira.CreateProject(ctx, gateway, localUser, payload)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("creation failed: %s", resp.Error)
	}
	fmt.Printf("created project %s with %d epics: %s\n", key, len(payload.Epics), resp.BoardURL)
	return nil
}
