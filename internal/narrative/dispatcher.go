// Package narrative wraps formatted job context in a fixed per-kind
// instruction, sends it to the generation service, and returns the generated
// text untouched.
package narrative

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/mitigate/internal/dossier"
	"github.com/kalambet/mitigate/internal/job"
	"github.com/kalambet/mitigate/internal/llm"
)

const defaultMaxTokens = 1500

// Completer sends one chat completion request. *llm.Client satisfies it.
type Completer interface {
	Configured() bool
	Complete(ctx context.Context, req llm.ChatRequest) (string, error)
}

// Options tunes a Dispatcher. Zero values fall back to the client's model
// and a 1500-token cap.
type Options struct {
	Model       string
	VisionModel string
	MaxTokens   int
	Logger      *slog.Logger
}

// Dispatcher issues one request per narrative operation. It holds no
// per-request state and is safe for concurrent use.
type Dispatcher struct {
	client      Completer
	model       string
	visionModel string
	maxTokens   int
	logger      *slog.Logger
}

func New(client Completer, opts Options) *Dispatcher {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.VisionModel == "" {
		opts.VisionModel = opts.Model
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dispatcher{
		client:      client,
		model:       opts.Model,
		visionModel: opts.VisionModel,
		maxTokens:   opts.MaxTokens,
		logger:      opts.Logger,
	}
}

// Configured reports whether the generation service has credentials.
func (d *Dispatcher) Configured() bool {
	return d.client != nil && d.client.Configured()
}

// Generate dispatches a text kind against the whole record. The photo kind
// needs image input and must go through DescribePhoto.
func (d *Dispatcher) Generate(ctx context.Context, kind Kind, rec job.Record) (string, error) {
	switch kind {
	case KindSummary:
		return d.GenerateSummary(ctx, rec)
	case KindPsychrometrics:
		return d.AnalyzePsychrometrics(ctx, rec.PsychroReadings)
	case KindScope:
		return d.GenerateScope(ctx, rec)
	case KindHazard:
		return d.GenerateHazardPlan(ctx, rec)
	case KindPhoto:
		return "", fmt.Errorf("narrative %s: requires photo input", kind)
	default:
		return "", fmt.Errorf("unknown narrative kind %q", kind)
	}
}

// GenerateSummary writes the eight-section insurance summary.
func (d *Dispatcher) GenerateSummary(ctx context.Context, rec job.Record) (string, error) {
	return d.text(ctx, KindSummary, dossier.Format(rec))
}

// AnalyzePsychrometrics describes the drying trend of the readings.
func (d *Dispatcher) AnalyzePsychrometrics(ctx context.Context, readings []job.PsychroReading) (string, error) {
	return d.text(ctx, KindPsychrometrics, dossier.FormatPsychrometrics(readings))
}

// GenerateScope writes the room-grouped scope of work.
func (d *Dispatcher) GenerateScope(ctx context.Context, rec job.Record) (string, error) {
	return d.text(ctx, KindScope, dossier.Format(rec))
}

// GenerateHazardPlan writes the four-section site safety plan.
func (d *Dispatcher) GenerateHazardPlan(ctx context.Context, rec job.Record) (string, error) {
	return d.text(ctx, KindHazard, dossier.Format(rec))
}

// PhotoInput is the image-conditioned request for one room photo.
type PhotoInput struct {
	DataURI   string
	RoomName  string
	Checklist []string
}

// DescribePhoto returns bullet points describing one room photo. The image is
// passed through to the vision model as-is.
func (d *Dispatcher) DescribePhoto(ctx context.Context, in PhotoInput) (string, error) {
	if !d.Configured() {
		return "", &ConfigurationError{Kind: KindPhoto}
	}
	if err := ValidatePhotoDataURI(in.DataURI); err != nil {
		return "", err
	}

	tmpl := templates[KindPhoto]
	checklist := "None"
	if len(in.Checklist) > 0 {
		checklist = strings.Join(in.Checklist, ", ")
	}
	name := strings.TrimSpace(in.RoomName)
	if name == "" {
		name = "N/A"
	}
	prompt := fmt.Sprintf("%s\n\nRoom: %s\nRoom checklist: %s", tmpl.Instruction, name, checklist)

	return d.send(ctx, KindPhoto, d.visionModel, tmpl, llm.UserImageMessage(prompt, in.DataURI))
}

func (d *Dispatcher) text(ctx context.Context, kind Kind, jobText string) (string, error) {
	if !d.Configured() {
		return "", &ConfigurationError{Kind: kind}
	}
	tmpl := templates[kind]
	prompt := tmpl.Instruction + "\n\nJob data:\n" + jobText
	return d.send(ctx, kind, d.model, tmpl, llm.UserMessage(prompt))
}

func (d *Dispatcher) send(ctx context.Context, kind Kind, model string, tmpl Template, user llm.Message) (string, error) {
	req := llm.ChatRequest{
		Model:     model,
		Messages:  []llm.Message{llm.SystemMessage(tmpl.System), user},
		MaxTokens: d.maxTokens,
	}
	out, err := d.client.Complete(ctx, req)
	if err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			return "", &ConfigurationError{Kind: kind}
		}
		return "", &UpstreamError{Kind: kind, Err: err}
	}
	return out, nil
}

// ValidatePhotoDataURI checks for a data:image/<type>;base64,<payload> URI
// with a decodable, non-empty payload.
func ValidatePhotoDataURI(uri string) error {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "data:image/")
	if !ok {
		return ErrInvalidPhoto
	}
	mediaType, payload, ok := strings.Cut(rest, ";base64,")
	if !ok || mediaType == "" || strings.ContainsAny(mediaType, ",;") || payload == "" {
		return ErrInvalidPhoto
	}
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPhoto, err)
	}
	return nil
}
