package jira

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const sampleBRD = `# Epic: User Authentication
- Story: Frontend Login Form
- Story: Backend Auth API

# Epic: Reporting
- Story: Weekly Summary Email`

func TestParseBRD(t *testing.T) {
	t.Parallel()
	payload := ParseBRD(sampleBRD, "PROJ")
	if payload.ProjectKey != "PROJ" {
		t.Errorf("project key = %q", payload.ProjectKey)
	}
	if len(payload.Epics) != 2 {
		t.Fatalf("epics = %d, want 2", len(payload.Epics))
	}
	auth := payload.Epics[0]
	if auth.Title != "User Authentication" || len(auth.Stories) != 2 {
		t.Errorf("first epic = %+v", auth)
	}
	if auth.Stories[1].Title != "Backend Auth API" {
		t.Errorf("second story = %+v", auth.Stories[1])
	}
	if payload.Epics[1].Title != "Reporting" || len(payload.Epics[1].Stories) != 1 {
		t.Errorf("second epic = %+v", payload.Epics[1])
	}
}

func TestParseBRDWithoutEpics(t *testing.T) {
	t.Parallel()
	payload := ParseBRD("just free text\nwith no structure", "PROJ")
	if len(payload.Epics) != 0 {
		t.Errorf("epics = %+v, want none", payload.Epics)
	}
}

// scriptedModel returns a fixed forced-tool-call response, or an error.
type scriptedModel struct {
	mu    sync.Mutex
	args  string
	err   error
	calls int
}

func (m *scriptedModel) Generate(ctx context.Context, msgs []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       "call-1",
		Type:     "function",
		Function: schema.FunctionCall{Name: "create_jira_payload", Arguments: m.args},
	}}), nil
}

func (m *scriptedModel) Stream(ctx context.Context, msgs []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, msgs, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *scriptedModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

func TestPayloadForcesProjectKey(t *testing.T) {
	t.Parallel()
	args, err := sonic.MarshalString(Payload{
		ProjectKey: "WRONG",
		Name:       "ProjectX",
		Epics:      []Epic{{Title: "Setup", Stories: []Story{{Title: "Bootstrap repo"}}}},
	})
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	gen, err := NewGenerator(&scriptedModel{args: args})
	if err != nil {
		t.Fatalf("NewGenerator failed: %v", err)
	}

	payload, err := gen.Payload(context.Background(), sampleBRD, "PROJ")
	if err != nil {
		t.Fatalf("Payload failed: %v", err)
	}
	if payload.ProjectKey != "PROJ" {
		t.Errorf("project key = %q, want the caller's key", payload.ProjectKey)
	}
	if payload.Name != "ProjectX" || len(payload.Epics) != 1 {
		t.Errorf("payload = %+v", payload)
	}
}

func TestPayloadFallsBackToParser(t *testing.T) {
	t.Parallel()
	engine := &scriptedModel{err: errors.New("model down")}
	gen, err := NewGenerator(engine)
	if err != nil {
		t.Fatalf("NewGenerator failed: %v", err)
	}
	gen.Retries = 2
	gen.Delay = time.Millisecond

	payload, err := gen.Payload(context.Background(), sampleBRD, "PROJ")
	if err != nil {
		t.Fatalf("fallback must not fail: %v", err)
	}
	if engine.calls != 3 {
		t.Errorf("model attempts = %d, want 3", engine.calls)
	}
	if len(payload.Epics) != 2 || payload.Epics[0].Title != "User Authentication" {
		t.Errorf("fallback payload = %+v", payload)
	}
}

type captureGateway struct {
	name   string
	args   map[string]any
	result json.RawMessage
	err    error
}

func (g *captureGateway) CallTool(ctx context.Context, userID, name string, args map[string]any) (json.RawMessage, error) {
	g.name = name
	g.args = args
	return g.result, g.err
}

func TestCreateProjectDecodesContentFraming(t *testing.T) {
	t.Parallel()
	gateway := &captureGateway{
		result: json.RawMessage(`[{"type":"text","text":"{\"success\":true,\"boardUrl\":\"https://example.atlassian.net/PROJ\",\"epicsCreated\":[\"PROJ-1\"]}"}]`),
	}
	resp, err := CreateProject(context.Background(), gateway, "u1", &Payload{
		ProjectKey: "PROJ",
		Epics:      []Epic{{Title: "Setup", Stories: []Story{{Title: "Bootstrap"}}}},
	})
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	if !resp.Success || resp.BoardURL != "https://example.atlassian.net/PROJ" {
		t.Errorf("response = %+v", resp)
	}
	if gateway.name != "create_jira_project" {
		t.Errorf("tool = %q", gateway.name)
	}
	if gateway.args["projectKey"] != "PROJ" {
		t.Errorf("args = %+v", gateway.args)
	}
}

func TestCreateProjectDecodesBareObject(t *testing.T) {
	t.Parallel()
	gateway := &captureGateway{
		result: json.RawMessage(`{"success":false,"error":"key already in use"}`),
	}
	resp, err := CreateProject(context.Background(), gateway, "u1", &Payload{ProjectKey: "PROJ"})
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	if resp.Success || resp.Error != "key already in use" {
		t.Errorf("response = %+v", resp)
	}
}

func TestCreateProjectPropagatesGatewayError(t *testing.T) {
	t.Parallel()
	gateway := &captureGateway{err: errors.New("no session")}
	if _, err := CreateProject(context.Background(), gateway, "u1", &Payload{ProjectKey: "PROJ"}); err == nil {
		t.Fatal("expected gateway error to propagate")
	}
}
