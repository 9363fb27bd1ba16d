package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaenova/chatd/src/agent"
	"github.com/kaenova/chatd/src/aisdk"
	"github.com/kaenova/chatd/src/attachment"
	"github.com/kaenova/chatd/src/blobstore"
	"github.com/kaenova/chatd/src/checkpoint"
	"github.com/kaenova/chatd/src/history"
	"github.com/kaenova/chatd/src/turn"
)

type scriptedStream struct {
	chunks []*aisdk.StreamChunk
	pos    int
}

func (s *scriptedStream) Read() (*aisdk.StreamChunk, error) {
	if s.pos >= len(s.chunks) {
		return nil, io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *scriptedStream) Close() error { return nil }

type scriptedModel struct {
	responses [][]*aisdk.StreamChunk
	calls     int
}

func (m *scriptedModel) CreateChatCompletion(ctx context.Context, req *aisdk.ChatCompletionRequest) (*aisdk.ChatCompletionResponse, error) {
	return nil, errors.New("not used")
}

func (m *scriptedModel) CreateChatCompletionStream(ctx context.Context, req *aisdk.ChatCompletionRequest) (aisdk.StreamInterface, error) {
	if m.calls >= len(m.responses) {
		return nil, fmt.Errorf("unexpected model call %d", m.calls)
	}
	chunks := m.responses[m.calls]
	m.calls++
	return &scriptedStream{chunks: chunks}, nil
}

func (m *scriptedModel) GetModelInfo() *aisdk.ModelInfo {
	return &aisdk.ModelInfo{ID: "scripted", Name: "scripted"}
}

func textResponse(id string, deltas ...string) []*aisdk.StreamChunk {
	var chunks []*aisdk.StreamChunk
	for _, d := range deltas {
		chunks = append(chunks, &aisdk.StreamChunk{
			ID: id,
			Choices: []aisdk.Choice{{
				Delta: &aisdk.Message{
					Role:  aisdk.RoleAssistant,
					Parts: []aisdk.Part{{Type: aisdk.PartTypeText, Text: d}},
				},
			}},
		})
	}
	return append(chunks, &aisdk.StreamChunk{
		ID:      id,
		Choices: []aisdk.Choice{{Delta: &aisdk.Message{}, FinishReason: "stop"}},
	})
}

func toolCallResponse(id string, calls ...aisdk.ToolCall) []*aisdk.StreamChunk {
	return []*aisdk.StreamChunk{
		{
			ID: id,
			Choices: []aisdk.Choice{{
				Delta: &aisdk.Message{Role: aisdk.RoleAssistant, ToolCalls: calls},
			}},
		},
		{
			ID:      id,
			Choices: []aisdk.Choice{{Delta: &aisdk.Message{}, FinishReason: "tool_calls"}},
		},
	}
}

func weatherCall(callID, city string) aisdk.ToolCall {
	return aisdk.ToolCall{
		ID: callID, Type: "function",
		Function: aisdk.FunctionCall{
			Name:      "current_weather",
			Arguments: json.RawMessage(fmt.Sprintf(`{"city":%q}`, city)),
		},
	}
}

type weatherInput struct {
	City string `json:"city"`
}

func testToolbox(t *testing.T) *agent.DefaultToolbox {
	t.Helper()
	toolbox := agent.NewToolbox[agent.Tool]()
	weather, err := agent.NewGenericTool("current_weather", "Get the current weather for a city",
		func(ctx context.Context, in weatherInput) (string, error) {
			return fmt.Sprintf("%s is sunny right now!", in.City), nil
		})
	require.NoError(t, err)
	require.NoError(t, toolbox.RegisterTool(weather))
	return toolbox
}

type testEnv struct {
	server *Server
	http   *httptest.Server
	store  checkpoint.Store
	blobs  *blobstore.Store
}

func newTestEnv(t *testing.T, model aisdk.ModelClient) *testEnv {
	t.Helper()
	return newTestEnvRate(t, model, 0, 0)
}

func newTestEnvRate(t *testing.T, model aisdk.ModelClient, rps float64, burst int) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := checkpoint.NewMemoryStore()
	gate := turn.NewGate([]string{"current_weather"})
	machine := turn.NewMachine(turn.Config{
		Store: store,
		Agent: &agent.Agent{
			SystemPrompt: "You are a helpful assistant.",
			Model:        model,
			Toolbox:      testToolbox(t),
		},
		Gate:   gate,
		Logger: logger,
	})

	db, err := attachment.Open(filepath.Join(t.TempDir(), "attachments.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	signer := blobstore.NewSigner([]byte("test-signing-key"), time.Hour)
	blobs, err := blobstore.New(afero.NewMemMapFs(), "blobs", signer, logger)
	require.NoError(t, err)

	srv := New(Options{
		Addr:        ":0",
		Store:       store,
		Machine:     machine,
		Gate:        gate,
		History:     history.NewReconstructor(store, logger),
		Attachments: db,
		Blobs:       blobs,
		RateLimit:   rps,
		RateBurst:   burst,
		Logger:      logger,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{server: srv, http: ts, store: store, blobs: blobs}
}

func (e *testEnv) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.http.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func (e *testEnv) getJSON(t *testing.T, path string, out any) {
	t.Helper()
	resp, err := http.Get(e.http.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

// readEvents consumes an NDJSON response into decoded lines.
func readEvents(t *testing.T, resp *http.Response) []map[string]any {
	t.Helper()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var events []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var event map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &event), "line: %s", line)
		events = append(events, event)
	}
	return events
}

func eventTypes(events []map[string]any) []string {
	var types []string
	for _, e := range events {
		types = append(types, e["type"].(string))
	}
	return types
}

func runBody(text string) map[string]any {
	return map[string]any{"message": map[string]any{"content": text}}
}

func snapshotTexts(t *testing.T, event map[string]any) []string {
	t.Helper()
	msgs, ok := event["messages"].([]any)
	require.True(t, ok, "snapshot event without messages: %v", event)
	var texts []string
	for _, raw := range msgs {
		msg := raw.(map[string]any)
		var text strings.Builder
		for _, p := range msg["content"].([]any) {
			part := p.(map[string]any)
			if part["type"] == "text" {
				text.WriteString(part["text"].(string))
			}
		}
		texts = append(texts, text.String())
	}
	return texts
}

func TestCreateThread(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{})

	resp := env.postJSON(t, "/api/v1/threads", map[string]any{})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.NotEmpty(t, created["thread_id"])
}

func TestRunStreamTokensAndFinalSnapshot(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{responses: [][]*aisdk.StreamChunk{
		textResponse("r1", "Hello", " there"),
	}})

	resp := env.postJSON(t, "/api/v1/threads/t1/runs/stream", runBody("hi"))
	events := readEvents(t, resp)

	types := eventTypes(events)
	assert.Contains(t, types, "token")
	require.Equal(t, "snapshot", types[len(types)-1])

	final := events[len(events)-1]
	assert.Equal(t, "t1", final["thread_id"])
	assert.Equal(t, []string{"hi", "Hello there"}, snapshotTexts(t, final))
}

func TestRunStreamModelFailure(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{})

	resp := env.postJSON(t, "/api/v1/threads/t1/runs/stream", runBody("hi"))
	events := readEvents(t, resp)

	types := eventTypes(events)
	require.NotEmpty(t, types)
	assert.Equal(t, "error", types[len(types)-1])
}

func TestApprovalFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{responses: [][]*aisdk.StreamChunk{
		toolCallResponse("r1", weatherCall("call-1", "Paris")),
		textResponse("r2", "It is sunny in Paris."),
	}})

	resp := env.postJSON(t, "/api/v1/threads/t1/runs/stream", runBody("Weather in Paris?"))
	events := readEvents(t, resp)
	assert.Contains(t, eventTypes(events), "interrupt")

	// The poll derives the pending approval from the head checkpoint, so
	// asking twice reports the same state.
	for i := 0; i < 2; i++ {
		var poll map[string]any
		env.getJSON(t, "/api/v1/threads/t1/interrupt", &poll)
		require.Equal(t, true, poll["interrupted"])
		payload := poll["payload"].(map[string]any)
		assert.Equal(t, "tool_approval_required", payload["type"])
		calls := payload["tool_calls"].([]any)
		require.Len(t, calls, 1)
		assert.Equal(t, "current_weather", calls[0].(map[string]any)["name"])
	}

	resp = env.postJSON(t, "/api/v1/threads/t1/feedback", map[string]any{
		"decision": map[string]any{"approved_ids": []string{"call-1"}},
	})
	events = readEvents(t, resp)
	require.Equal(t, "snapshot", eventTypes(events)[len(events)-1])

	texts := snapshotTexts(t, events[len(events)-1])
	assert.Contains(t, texts, "Weather in Paris?")
	assert.Equal(t, "It is sunny in Paris.", texts[len(texts)-1])

	var poll map[string]any
	env.getJSON(t, "/api/v1/threads/t1/interrupt", &poll)
	assert.Equal(t, false, poll["interrupted"])
}

func TestFeedbackWithoutSuspension(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{})

	resp := env.postJSON(t, "/api/v1/threads/t1/feedback", map[string]any{
		"decision": map[string]any{"approved_ids": []string{"call-1"}},
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestEditForksThread(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{responses: [][]*aisdk.StreamChunk{
		textResponse("r1", "first answer"),
		textResponse("r2", "second answer"),
	}})

	resp := env.postJSON(t, "/api/v1/threads/t1/runs/stream", map[string]any{
		"message": map[string]any{"content": "hello"},
	})
	events := readEvents(t, resp)
	final := events[len(events)-1]
	firstUser := final["messages"].([]any)[0].(map[string]any)["id"].(string)

	resp = env.postJSON(t, "/api/v1/threads/t1/runs/stream", map[string]any{
		"message":           map[string]any{"content": "hello, edited"},
		"source_message_id": firstUser,
	})
	events = readEvents(t, resp)
	final = events[len(events)-1]

	assert.Equal(t, []string{"hello, edited", "second answer"}, snapshotTexts(t, final))

	// Both branches stay reachable through the repository.
	repo := final["messageRepository"].(map[string]any)
	items := repo["messages"].([]any)
	assert.Len(t, items, 3)
	assert.NotEmpty(t, repo["headId"])
}

func TestRegenerateFromParentMessage(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{responses: [][]*aisdk.StreamChunk{
		textResponse("r1", "first answer"),
		textResponse("r2", "regenerated answer"),
	}})

	resp := env.postJSON(t, "/api/v1/threads/t1/runs/stream", runBody("hello"))
	events := readEvents(t, resp)
	final := events[len(events)-1]
	userID := final["messages"].([]any)[0].(map[string]any)["id"].(string)

	resp = env.postJSON(t, "/api/v1/threads/t1/runs/stream", map[string]any{
		"parent_message_id": userID,
	})
	events = readEvents(t, resp)
	final = events[len(events)-1]

	// The old answer is replaced at the head, not extended.
	assert.Equal(t, []string{"hello", "regenerated answer"}, snapshotTexts(t, final))

	// Both answers hang off the user message as siblings.
	repo := final["messageRepository"].(map[string]any)
	items := repo["messages"].([]any)
	require.Len(t, items, 3)
	siblings := 0
	for _, it := range items {
		item := it.(map[string]any)
		if parent, ok := item["parentId"].(string); ok && parent == userID {
			siblings++
		}
	}
	assert.Equal(t, 2, siblings)
}

func TestRunStreamUnknownSourceMessage(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{})

	resp := env.postJSON(t, "/api/v1/threads/t1/runs/stream", map[string]any{
		"message":           map[string]any{"content": "hello"},
		"source_message_id": "missing",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConcurrentRunRejected(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{})

	mu := env.server.lockThread("t1")
	mu.Lock()
	defer mu.Unlock()

	resp := env.postJSON(t, "/api/v1/threads/t1/runs/stream", runBody("hi"))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestThreadMessagesEmptyThread(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{})

	var snapshot map[string]any
	env.getJSON(t, "/api/v1/threads/nope/messages", &snapshot)
	assert.Equal(t, "nope", snapshot["thread_id"])
	assert.Empty(t, snapshot["messages"])
}
