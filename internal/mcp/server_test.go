package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/parleygate/parley/internal/tools"
)

func testRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	reg.Register(&tools.Tool{
		Name:        "echo",
		Description: "Echo the text argument back.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			s, _ := args["text"].(string)
			return `{"echo":"` + s + `"}`, nil
		},
	})
	reg.Register(&tools.Tool{
		Name:        "always_fails",
		Description: "Fails on every call.",
		Parameters:  map[string]any{"type": "object"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("deliberate failure")
		},
	})
	return reg
}

func handle(t *testing.T, srv *Server, raw string) *Response {
	t.Helper()
	var req Request
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	return srv.Handle(context.Background(), &req)
}

func TestInitialize(t *testing.T) {
	srv := NewServer(testRegistry(t), nil)
	resp := handle(t, srv, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	if resp == nil {
		t.Fatal("expected a response")
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	if string(resp.ID) != "1" {
		t.Errorf("ID = %s, want 1", resp.ID)
	}
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("result type %T", resp.Result)
	}
	if result["protocolVersion"] != protocolVersion {
		t.Errorf("protocolVersion = %v", result["protocolVersion"])
	}
	info, ok := result["serverInfo"].(map[string]any)
	if !ok || info["name"] != "parley" {
		t.Errorf("serverInfo = %v", result["serverInfo"])
	}
}

func TestStringIDEchoedVerbatim(t *testing.T) {
	srv := NewServer(testRegistry(t), nil)
	resp := handle(t, srv, `{"jsonrpc":"2.0","id":"req-7","method":"ping"}`)
	if resp == nil {
		t.Fatal("expected a response")
	}
	if string(resp.ID) != `"req-7"` {
		t.Errorf("ID = %s, want \"req-7\"", resp.ID)
	}
}

func TestNotificationProducesNoResponse(t *testing.T) {
	srv := NewServer(testRegistry(t), nil)
	resp := handle(t, srv, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	if resp != nil {
		t.Fatalf("expected nil response, got %+v", resp)
	}
}

func TestToolsList(t *testing.T) {
	srv := NewServer(testRegistry(t), nil)
	resp := handle(t, srv, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	if resp == nil || resp.Error != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
	out, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatal(err)
	}
	var result struct {
		Tools []struct {
			Name        string         `json:"name"`
			InputSchema map[string]any `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Tools) != 2 {
		t.Fatalf("got %d tools, want 2", len(result.Tools))
	}
	if result.Tools[0].Name != "echo" {
		t.Errorf("first tool = %q", result.Tools[0].Name)
	}
	if result.Tools[0].InputSchema["type"] != "object" {
		t.Errorf("inputSchema = %v", result.Tools[0].InputSchema)
	}
}

func TestToolsCall(t *testing.T) {
	srv := NewServer(testRegistry(t), nil)
	resp := handle(t, srv, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{"text":"hi"}}}`)
	if resp == nil || resp.Error != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
	result, ok := resp.Result.(callResult)
	if !ok {
		t.Fatalf("result type %T", resp.Result)
	}
	if result.IsError {
		t.Error("IsError = true, want false")
	}
	if len(result.Content) != 1 || result.Content[0].Type != "text" {
		t.Fatalf("content = %+v", result.Content)
	}
	if !strings.Contains(result.Content[0].Text, `"echo":"hi"`) {
		t.Errorf("text = %q", result.Content[0].Text)
	}
}

func TestToolsCallFailureReportedInResult(t *testing.T) {
	srv := NewServer(testRegistry(t), nil)
	resp := handle(t, srv, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"always_fails","arguments":{}}}`)
	if resp == nil {
		t.Fatal("expected a response")
	}
	if resp.Error != nil {
		t.Fatalf("tool failure must not be a protocol error: %v", resp.Error)
	}
	result, ok := resp.Result.(callResult)
	if !ok {
		t.Fatalf("result type %T", resp.Result)
	}
	if !result.IsError {
		t.Error("IsError = false, want true")
	}
	if !strings.Contains(result.Content[0].Text, tools.CodeInternalError) {
		t.Errorf("text = %q", result.Content[0].Text)
	}
}

func TestToolsCallUnknownTool(t *testing.T) {
	srv := NewServer(testRegistry(t), nil)
	resp := handle(t, srv, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"nope","arguments":{}}}`)
	if resp == nil || resp.Error == nil {
		t.Fatalf("expected protocol error, got %+v", resp)
	}
	if resp.Error.Code != codeInvalidParams {
		t.Errorf("code = %d, want %d", resp.Error.Code, codeInvalidParams)
	}
}

func TestUnknownMethod(t *testing.T) {
	srv := NewServer(testRegistry(t), nil)
	resp := handle(t, srv, `{"jsonrpc":"2.0","id":6,"method":"resources/list"}`)
	if resp == nil || resp.Error == nil {
		t.Fatalf("expected error response, got %+v", resp)
	}
	if resp.Error.Code != codeMethodNotFound {
		t.Errorf("code = %d, want %d", resp.Error.Code, codeMethodNotFound)
	}
}

func TestServeStdio(t *testing.T) {
	srv := NewServer(testRegistry(t), nil)
	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`not json`,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
	}, "\n") + "\n"

	var out bytes.Buffer
	if err := srv.ServeStdio(context.Background(), strings.NewReader(input), &out); err != nil {
		t.Fatalf("ServeStdio: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d response lines, want 3:\n%s", len(lines), out.String())
	}

	var first Response
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if string(first.ID) != "1" || first.Error != nil {
		t.Errorf("first response: %+v", first)
	}

	var second Response
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatal(err)
	}
	if second.Error == nil || second.Error.Code != codeParseError {
		t.Errorf("parse error response: %+v", second)
	}

	var third Response
	if err := json.Unmarshal([]byte(lines[2]), &third); err != nil {
		t.Fatal(err)
	}
	if string(third.ID) != "2" {
		t.Errorf("third ID = %s", third.ID)
	}
}

func TestHTTPHandlerInitializeMintsSession(t *testing.T) {
	srv := NewServer(testRegistry(t), nil)
	handler := srv.NewHTTPHandler()

	req := httptest.NewRequest("POST", "/mcp", strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get(sessionHeader) == "" {
		t.Error("expected a session header on initialize")
	}
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
}

func TestHTTPHandlerEchoesSession(t *testing.T) {
	srv := NewServer(testRegistry(t), nil)
	handler := srv.NewHTTPHandler()

	req := httptest.NewRequest("POST", "/mcp", strings.NewReader(
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`))
	req.Header.Set(sessionHeader, "sess-abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(sessionHeader); got != "sess-abc" {
		t.Errorf("session header = %q", got)
	}
}

func TestHTTPHandlerNotification(t *testing.T) {
	srv := NewServer(testRegistry(t), nil)
	handler := srv.NewHTTPHandler()

	req := httptest.NewRequest("POST", "/mcp", strings.NewReader(
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != 202 {
		t.Errorf("status = %d, want 202", rec.Code)
	}
}

func TestHTTPHandlerRejectsGet(t *testing.T) {
	srv := NewServer(testRegistry(t), nil)
	handler := srv.NewHTTPHandler()

	req := httptest.NewRequest("GET", "/mcp", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != 405 {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
