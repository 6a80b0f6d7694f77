package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/mitigate/internal/job"
	"github.com/kalambet/mitigate/internal/narrative"
	"github.com/kalambet/mitigate/internal/storage"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T, c *fakeCompleter) (MCPDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return MCPDeps{
		Store:      store,
		Narratives: narrative.New(c, narrative.Options{Model: "test-model", Logger: quietLogger()}),
		Logger:     quietLogger(),
	}, store
}

func sampleJob() job.Record {
	return job.Record{
		JobDetails: job.JobDetails{JobNumber: "4471"},
		Insured:    job.Insured{Name: "Pat Doe"},
		Rooms:      []job.Room{{Name: "Hall Bath"}},
	}
}

func sampleJobJSON(t *testing.T) string {
	t.Helper()
	b, err := json.Marshal(sampleJob())
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_FormatJob(t *testing.T) {
	deps, _ := newTestMCPDeps(t, &fakeCompleter{})
	handler := mcpFormatJob(deps)

	result, err := handler(context.Background(), makeCallToolRequest("format_job", map[string]interface{}{
		"job": sampleJobJSON(t),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	text := toolText(t, result)
	for _, want := range []string{"Job #: 4471", "Room 1: Hall Bath", "No psychrometric readings"} {
		if !strings.Contains(text, want) {
			t.Errorf("dossier missing %q:\n%s", want, text)
		}
	}
}

func TestMCPTool_FormatJob_InvalidJSON(t *testing.T) {
	deps, _ := newTestMCPDeps(t, &fakeCompleter{})
	handler := mcpFormatJob(deps)

	for _, args := range []map[string]interface{}{{}, {"job": "{oops"}} {
		result, err := handler(context.Background(), makeCallToolRequest("format_job", args))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Errorf("args %v: expected tool error", args)
		}
	}
}

func TestMCPTool_GenerateNarrative(t *testing.T) {
	c := &fakeCompleter{configured: true, response: "Site Hazards\n- wet floor"}
	deps, _ := newTestMCPDeps(t, c)
	handler := mcpGenerateNarrative(deps)

	result, err := handler(context.Background(), makeCallToolRequest("generate_narrative", map[string]interface{}{
		"kind": "hazard-plan",
		"job":  sampleJobJSON(t),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if got := toolText(t, result); got != "Site Hazards\n- wet floor" {
		t.Errorf("text = %q", got)
	}
}

func TestMCPTool_GenerateNarrative_Errors(t *testing.T) {
	tests := []struct {
		name string
		c    *fakeCompleter
		kind string
		want string
	}{
		{"unknown kind", &fakeCompleter{configured: true}, "poem", "unknown narrative kind"},
		{"photo kind", &fakeCompleter{configured: true}, "photo", "need an image"},
		{"unconfigured", &fakeCompleter{}, "summary", "Error generating summary: narrative generation is not configured"},
		{"upstream", &fakeCompleter{configured: true, err: context.DeadlineExceeded}, "scope", "Error generating scope of work"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			deps, _ := newTestMCPDeps(t, tc.c)
			result, err := mcpGenerateNarrative(deps)(context.Background(), makeCallToolRequest("generate_narrative", map[string]interface{}{
				"kind": tc.kind,
				"job":  sampleJobJSON(t),
			}))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.IsError {
				t.Fatal("expected tool error")
			}
			if got := toolText(t, result); !strings.Contains(got, tc.want) {
				t.Errorf("text = %q, want it to contain %q", got, tc.want)
			}
			if strings.Contains(toolText(t, result), "deadline") {
				t.Error("upstream cause leaked")
			}
		})
	}
}

func TestMCPTool_GenerateNarrative_LogsCause(t *testing.T) {
	var logs bytes.Buffer
	c := &fakeCompleter{configured: true, err: errors.New("dial tcp 10.1.2.3:443: connection refused")}
	deps, _ := newTestMCPDeps(t, c)
	deps.Logger = slog.New(slog.NewTextHandler(&logs, nil))

	result, err := mcpGenerateNarrative(deps)(context.Background(), makeCallToolRequest("generate_narrative", map[string]interface{}{
		"kind": "scope",
		"job":  sampleJobJSON(t),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if strings.Contains(toolText(t, result), "refused") {
		t.Errorf("cause leaked to caller: %q", toolText(t, result))
	}
	for _, want := range []string{"level=WARN", "kind=scope", "connection refused"} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("log missing %q:\n%s", want, logs.String())
		}
	}
}

func TestMCPTool_StorageErrorsNotLeaked(t *testing.T) {
	var logs bytes.Buffer
	deps, store := newTestMCPDeps(t, &fakeCompleter{})
	deps.Logger = slog.New(slog.NewTextHandler(&logs, nil))
	store.Close()

	tests := []struct {
		tool string
		h    func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		want string
	}{
		{"save_job", mcpSaveJob(deps), "failed to save job"},
		{"list_jobs", mcpListJobs(deps), "failed to list jobs"},
	}
	for _, tc := range tests {
		t.Run(tc.tool, func(t *testing.T) {
			logs.Reset()
			result, err := tc.h(context.Background(), makeCallToolRequest(tc.tool, map[string]interface{}{"job": sampleJobJSON(t)}))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.IsError {
				t.Fatal("expected tool error on closed store")
			}
			if got := toolText(t, result); got != tc.want {
				t.Errorf("text = %q, want %q", got, tc.want)
			}
			if !strings.Contains(logs.String(), "database is closed") {
				t.Errorf("storage cause not logged:\n%s", logs.String())
			}
		})
	}
}

func TestMCPTool_SaveAndListJobs(t *testing.T) {
	deps, store := newTestMCPDeps(t, &fakeCompleter{})

	result, err := mcpSaveJob(deps)(context.Background(), makeCallToolRequest("save_job", map[string]interface{}{
		"job":  sampleJobJSON(t),
		"name": "Doe loss",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if !strings.Contains(toolText(t, result), "Doe loss") {
		t.Errorf("text = %q", toolText(t, result))
	}

	saved, err := store.ListJobs(storage.ListOptions{})
	if err != nil || len(saved) != 1 {
		t.Fatalf("stored jobs = %v, %v", saved, err)
	}

	result, err = mcpListJobs(deps)(context.Background(), makeCallToolRequest("list_jobs", map[string]interface{}{
		"query": "doe",
		"limit": 500,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var list []storage.JobSummary
	if err := json.Unmarshal([]byte(toolText(t, result)), &list); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(list) != 1 || list[0].JobNumber != "4471" {
		t.Errorf("list = %+v", list)
	}
}

func TestMCPTool_NoStore(t *testing.T) {
	deps := MCPDeps{}
	for name, h := range map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"save_job":  mcpSaveJob(deps),
		"list_jobs": mcpListJobs(deps),
	} {
		result, err := h(context.Background(), makeCallToolRequest(name, map[string]interface{}{"job": "{}"}))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if !result.IsError {
			t.Errorf("%s: expected tool error without store", name)
		}
	}
}

func TestMCPResource_RecentJobs(t *testing.T) {
	deps, store := newTestMCPDeps(t, &fakeCompleter{})
	for range 12 {
		if _, err := store.SaveJob("", sampleJob()); err != nil {
			t.Fatal(err)
		}
	}

	contents, err := mcpResourceRecentJobs(deps)(context.Background(), makeReadResourceRequest("jobs://recent"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.URI != "jobs://recent" || tc.MIMEType != "application/json" {
		t.Errorf("resource = %+v", tc)
	}

	var recent []map[string]any
	if err := json.Unmarshal([]byte(tc.Text), &recent); err != nil {
		t.Fatalf("parsing resource: %v", err)
	}
	if len(recent) != recentJobsLimit {
		t.Errorf("recent = %d, want %d", len(recent), recentJobsLimit)
	}
}

func TestNewMCPServer_RegistersTools(t *testing.T) {
	deps, _ := newTestMCPDeps(t, &fakeCompleter{})
	s := NewMCPServer(deps)

	resp := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	out, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	for _, name := range []string{"format_job", "generate_narrative", "save_job", "list_jobs"} {
		if !strings.Contains(string(out), `"`+name+`"`) {
			t.Errorf("tool %q not listed: %s", name, out)
		}
	}
}
