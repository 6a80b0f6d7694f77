package narrative

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/mitigate/internal/job"
	"github.com/kalambet/mitigate/internal/llm"
)

const testImage = "data:image/png;base64,iVBORw0KGgo="

type fakeCompleter struct {
	configured bool
	calls      atomic.Int32

	mu       sync.Mutex
	requests []llm.ChatRequest
	reply    func(req llm.ChatRequest) (string, error)
}

func (f *fakeCompleter) Configured() bool { return f.configured }

func (f *fakeCompleter) Complete(_ context.Context, req llm.ChatRequest) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.reply != nil {
		return f.reply(req)
	}
	return "generated", nil
}

func (f *fakeCompleter) lastRequest(t *testing.T) llm.ChatRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("no requests recorded")
	}
	return f.requests[len(f.requests)-1]
}

func sampleRecord() job.Record {
	return job.Record{
		JobDetails: job.JobDetails{JobNumber: "4471", LossCategory: job.Category2},
		Rooms: []job.Room{{
			Name:      "Hall Bath",
			Narrative: "Removed baseboards, placed 2 dehumidifiers",
			DryLogs:   []job.DryLogEntry{{Date: "2024-01-02", Time: "09:00", Reading: "14%"}},
		}},
		PsychroReadings: []job.PsychroReading{{Date: "2024-01-02", Temp: "72", RH: "55", GPP: "70"}},
	}
}

func allOperations(d *Dispatcher) map[string]func() (string, error) {
	ctx := context.Background()
	rec := sampleRecord()
	return map[string]func() (string, error){
		"summary": func() (string, error) { return d.GenerateSummary(ctx, rec) },
		"psychro": func() (string, error) { return d.AnalyzePsychrometrics(ctx, rec.PsychroReadings) },
		"scope":   func() (string, error) { return d.GenerateScope(ctx, rec) },
		"hazard":  func() (string, error) { return d.GenerateHazardPlan(ctx, rec) },
		"photo": func() (string, error) {
			return d.DescribePhoto(ctx, PhotoInput{DataURI: testImage, RoomName: "Hall Bath"})
		},
	}
}

func TestDispatcher_UnconfiguredMakesNoCalls(t *testing.T) {
	fc := &fakeCompleter{configured: false}
	d := New(fc, Options{})

	for name, op := range allOperations(d) {
		_, err := op()
		var ce *ConfigurationError
		if !errors.As(err, &ce) {
			t.Errorf("%s: error = %v, want *ConfigurationError", name, err)
		}
	}
	if got := fc.calls.Load(); got != 0 {
		t.Errorf("network calls = %d, want 0", got)
	}
}

func TestDispatcher_UnconfiguredRealClientMakesNoRequests(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	d := New(llm.NewClientWithBaseURL("", "", srv.URL, time.Second), Options{})
	for name, op := range allOperations(d) {
		if _, err := op(); err == nil {
			t.Errorf("%s: expected configuration error", name)
		}
	}
	if got := hits.Load(); got != 0 {
		t.Errorf("server hits = %d, want 0", got)
	}
}

func TestDispatcher_NilClient(t *testing.T) {
	d := New(nil, Options{})
	_, err := d.GenerateSummary(context.Background(), job.Record{})
	var ce *ConfigurationError
	if !errors.As(err, &ce) || ce.Kind != KindSummary {
		t.Errorf("error = %v, want configuration error for summary", err)
	}
}

func TestDispatcher_ReturnsTextUnmodified(t *testing.T) {
	const raw = "\n1. Claim / Loss Summary\n  Category 2 loss.  \n"
	fc := &fakeCompleter{configured: true, reply: func(llm.ChatRequest) (string, error) { return raw, nil }}
	d := New(fc, Options{})

	got, err := d.GenerateSummary(context.Background(), sampleRecord())
	if err != nil {
		t.Fatalf("GenerateSummary: %v", err)
	}
	if got != raw {
		t.Errorf("text = %q, want %q", got, raw)
	}
}

func TestDispatcher_UpstreamError(t *testing.T) {
	cause := errors.New("connection refused")
	fc := &fakeCompleter{configured: true, reply: func(llm.ChatRequest) (string, error) { return "", cause }}
	d := New(fc, Options{})

	for name, op := range allOperations(d) {
		_, err := op()
		var ue *UpstreamError
		if !errors.As(err, &ue) {
			t.Errorf("%s: error = %v, want *UpstreamError", name, err)
			continue
		}
		if !errors.Is(err, cause) {
			t.Errorf("%s: cause not wrapped: %v", name, err)
		}
	}
	if got := fc.calls.Load(); got != 5 {
		t.Errorf("calls = %d, want exactly one per operation", got)
	}
}

func TestDispatcher_UpstreamStatusFromClient(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	d := New(llm.NewClientWithBaseURL("key", "", srv.URL, time.Second), Options{})
	_, err := d.GenerateScope(context.Background(), sampleRecord())

	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.Kind != KindScope {
		t.Fatalf("error = %v, want scope upstream error", err)
	}
	var se *llm.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadGateway {
		t.Errorf("status error not wrapped: %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
}

func TestDispatcher_PromptCarriesTemplateAndContext(t *testing.T) {
	fc := &fakeCompleter{configured: true}
	d := New(fc, Options{Model: "gpt-test", MaxTokens: 900})

	if _, err := d.GenerateSummary(context.Background(), sampleRecord()); err != nil {
		t.Fatal(err)
	}
	req := fc.lastRequest(t)
	if req.Model != "gpt-test" || req.MaxTokens != 900 {
		t.Errorf("model/max_tokens = %q/%d", req.Model, req.MaxTokens)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
		t.Fatalf("messages = %+v", req.Messages)
	}
	prompt := req.Messages[1].Text()
	for _, h := range SummaryHeadings {
		if !strings.Contains(prompt, h) {
			t.Errorf("summary prompt missing heading %q", h)
		}
	}
	for _, want := range []string{"Job #: 4471", "Room 1: Hall Bath", "14%"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("summary prompt missing context %q", want)
		}
	}

	if _, err := d.GenerateHazardPlan(context.Background(), sampleRecord()); err != nil {
		t.Fatal(err)
	}
	prompt = fc.lastRequest(t).Messages[1].Text()
	for _, h := range HazardHeadings {
		if !strings.Contains(prompt, h) {
			t.Errorf("hazard prompt missing heading %q", h)
		}
	}
}

func TestDispatcher_PsychrometricsUsesReadingsOnly(t *testing.T) {
	fc := &fakeCompleter{configured: true}
	d := New(fc, Options{})

	readings := []job.PsychroReading{{Date: "2024-01-03", Temp: "70", RH: "48", GPP: "55"}}
	if _, err := d.AnalyzePsychrometrics(context.Background(), readings); err != nil {
		t.Fatal(err)
	}
	prompt := fc.lastRequest(t).Messages[1].Text()
	if !strings.Contains(prompt, "- 2024-01-03 N/A | Temp: 70 | RH: 48% | GPP: 55") {
		t.Errorf("prompt missing reading line:\n%s", prompt)
	}
	if strings.Contains(prompt, "ROOMS") {
		t.Error("psychrometric prompt should not carry the full dossier")
	}
	if !strings.Contains(prompt, "2 short paragraphs") {
		t.Error("psychrometric prompt missing output bound")
	}
}

func TestDispatcher_DescribePhoto(t *testing.T) {
	fc := &fakeCompleter{configured: true}
	d := New(fc, Options{Model: "text-model", VisionModel: "vision-model"})

	_, err := d.DescribePhoto(context.Background(), PhotoInput{
		DataURI:   testImage,
		RoomName:  "Kitchen",
		Checklist: []string{"Baseboards Removed", "Air Movers Placed"},
	})
	if err != nil {
		t.Fatalf("DescribePhoto: %v", err)
	}
	req := fc.lastRequest(t)
	if req.Model != "vision-model" {
		t.Errorf("model = %q, want vision-model", req.Model)
	}
	user := req.Messages[1]
	if len(user.Parts) != 2 || user.Parts[1].ImageURL == nil || user.Parts[1].ImageURL.URL != testImage {
		t.Fatalf("user parts = %+v", user.Parts)
	}
	text := user.Parts[0].Text
	if !strings.Contains(text, "Room: Kitchen") || !strings.Contains(text, "Baseboards Removed, Air Movers Placed") {
		t.Errorf("photo prompt = %q", text)
	}
}

func TestDispatcher_InvalidPhotoRejectedBeforeCall(t *testing.T) {
	fc := &fakeCompleter{configured: true}
	d := New(fc, Options{})

	for _, uri := range []string{
		"",
		"https://example.com/a.png",
		"data:text/plain;base64,aGk=",
		"data:image/png,rawbytes",
		"data:image/png;base64,",
		"data:image/png;base64,***",
	} {
		_, err := d.DescribePhoto(context.Background(), PhotoInput{DataURI: uri})
		if !errors.Is(err, ErrInvalidPhoto) {
			t.Errorf("DescribePhoto(%q) error = %v, want ErrInvalidPhoto", uri, err)
		}
	}
	if fc.calls.Load() != 0 {
		t.Errorf("calls = %d, want 0", fc.calls.Load())
	}
}

func TestGenerate_DispatchesByKind(t *testing.T) {
	fc := &fakeCompleter{configured: true, reply: func(req llm.ChatRequest) (string, error) {
		return req.Messages[1].Text()[:20], nil
	}}
	d := New(fc, Options{})

	for _, k := range ReportKinds {
		out, err := d.Generate(context.Background(), k, sampleRecord())
		if err != nil {
			t.Fatalf("Generate(%s): %v", k, err)
		}
		tmpl, _ := TemplateFor(k)
		if !strings.HasPrefix(tmpl.Instruction, out) {
			t.Errorf("Generate(%s) used the wrong template: %q", k, out)
		}
	}

	if _, err := d.Generate(context.Background(), KindPhoto, sampleRecord()); err == nil {
		t.Error("photo kind should require DescribePhoto")
	}
	if _, err := d.Generate(context.Background(), Kind("poem"), sampleRecord()); err == nil {
		t.Error("unknown kind should fail")
	}
}

func TestGenerateBundle_PlaceholdersOnFailure(t *testing.T) {
	fc := &fakeCompleter{configured: true, reply: func(req llm.ChatRequest) (string, error) {
		if strings.Contains(req.Messages[1].Text(), "hazard and safety plan") {
			return "", fmt.Errorf("timeout")
		}
		return "ok", nil
	}}
	d := New(fc, Options{})

	got := d.GenerateBundle(context.Background(), sampleRecord())
	if len(got) != len(ReportKinds) {
		t.Fatalf("bundle has %d entries, want %d", len(got), len(ReportKinds))
	}
	if got[KindHazard] != KindHazard.Placeholder() {
		t.Errorf("hazard = %q, want placeholder", got[KindHazard])
	}
	for _, k := range []Kind{KindSummary, KindPsychrometrics, KindScope} {
		if got[k] != "ok" {
			t.Errorf("%s = %q, want ok", k, got[k])
		}
	}
	if fc.calls.Load() != 4 {
		t.Errorf("calls = %d, want 4", fc.calls.Load())
	}
}

func TestGenerateBundle_Unconfigured(t *testing.T) {
	fc := &fakeCompleter{}
	d := New(fc, Options{})

	got := d.GenerateBundle(context.Background(), job.Record{}, KindSummary, KindScope)
	if got[KindSummary] != "Error generating summary" || got[KindScope] != KindScope.Placeholder() {
		t.Errorf("bundle = %v", got)
	}
	if fc.calls.Load() != 0 {
		t.Errorf("calls = %d, want 0", fc.calls.Load())
	}
}

func TestParseKind(t *testing.T) {
	tests := map[string]Kind{
		"summary":     KindSummary,
		" Psychro ":   KindPsychrometrics,
		"hazard-plan": KindHazard,
		"SCOPE":       KindScope,
		"photo":       KindPhoto,
	}
	for in, want := range tests {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseKind("limerick"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestTemplates_Complete(t *testing.T) {
	for _, k := range Kinds {
		tmpl, ok := TemplateFor(k)
		if !ok {
			t.Fatalf("no template for %s", k)
		}
		if tmpl.Version != TemplateVersion || tmpl.System == "" || tmpl.Instruction == "" {
			t.Errorf("template %s incomplete: %+v", k, tmpl)
		}
		if tmpl.Vision != (k == KindPhoto) {
			t.Errorf("template %s vision = %v", k, tmpl.Vision)
		}
	}
}
