// Package report renders a job.Record and any generated narratives into a
// paginated Letter-size PDF.
//
// The renderer is sparse: sections and lines with no data are left out
// entirely. The full narrative summary always starts on a fresh final page,
// so adding it never changes the pages before it.
package report

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/kalambet/mitigate/internal/job"
)

const DefaultTitle = "Water Mitigation Report"

// Embedded DejaVu Sans Condensed faces. The core PDF fonts only cover cp1252.
var (
	//go:embed fonts/DejaVuSansCondensed.ttf
	fontRegular []byte
	//go:embed fonts/DejaVuSansCondensed-Bold.ttf
	fontBold []byte
	//go:embed fonts/DejaVuSansCondensed-Oblique.ttf
	fontOblique []byte
)

// Section titles, in render order.
const (
	SectionClaim        = "Claim / Insured Information"
	SectionInspection   = "Initial Inspection Summary"
	SectionTechHours    = "Tech Hours & Site Visits"
	SectionRooms        = "Room-by-Room Summary"
	SectionPsychro      = "Psychrometric Overview"
	SectionPsychroNotes = "Psychrometric Analysis"
	SectionScope        = "Scope of Work"
	SectionHazard       = "Hazard & Safety Plan"
	SectionNarrative    = "AI Mitigation Narrative"
)

// Bundle carries generated narrative text. Empty fields are absent.
type Bundle struct {
	Summary         string `json:"summary,omitempty"`
	PsychroAnalysis string `json:"psychroAnalysis,omitempty"`
	Scope           string `json:"scope,omitempty"`
	HazardPlan      string `json:"hazardPlan,omitempty"`
}

// RenderError is the single failure surfaced by Render. Its message is
// generic; the cause is available through errors.Unwrap for logging.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string { return "PDF generation failed" }

func (e *RenderError) Unwrap() error { return e.Err }

type Options struct {
	Title string
	Clock func() time.Time
}

// Renderer is stateless between calls and safe for concurrent use.
type Renderer struct {
	title string
	clock func() time.Time

	// finish runs on the laid-out document just before output.
	finish func(*fpdf.Fpdf)
}

func New(opts Options) *Renderer {
	if strings.TrimSpace(opts.Title) == "" {
		opts.Title = DefaultTitle
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Renderer{title: opts.Title, clock: opts.Clock}
}

// Render builds the whole document in memory. It returns either the complete
// PDF or a *RenderError, never partial output.
func (r *Renderer) Render(rec job.Record, b Bundle) (out []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			out = nil
			err = &RenderError{Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	d := newDocument(r.title, r.clock())
	d.titleBlock(r.title, rec)
	d.claimSection(rec.Insured, rec.Insurance)
	d.inspectionSection(rec.Inspection)
	d.techHoursSection(rec.TechHours)
	d.roomsSection(rec.Rooms)
	d.psychroSection(rec.PsychroReadings)
	d.textSection(SectionPsychroNotes, b.PsychroAnalysis)
	d.textSection(SectionScope, b.Scope)
	d.textSection(SectionHazard, b.HazardPlan)
	if strings.TrimSpace(b.Summary) != "" {
		d.pdf.AddPage()
		d.heading(SectionNarrative)
		d.paragraph(b.Summary)
	}
	if r.finish != nil {
		r.finish(d.pdf)
	}

	if err := d.pdf.Error(); err != nil {
		return nil, &RenderError{Err: err}
	}
	var buf bytes.Buffer
	if err := d.pdf.Output(&buf); err != nil {
		return nil, &RenderError{Err: err}
	}
	return buf.Bytes(), nil
}

func newDocument(title string, now time.Time) *document {
	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(now)
	pdf.SetModificationDate(now)
	pdf.SetTitle(title, true)
	pdf.SetCreator("mitigate", true)
	pdf.SetMargins(marginX, marginTop, marginX)
	pdf.SetAutoPageBreak(true, marginBottom)

	pdf.AddUTF8FontFromBytes(font, "", fontRegular)
	pdf.AddUTF8FontFromBytes(font, "B", fontBold)
	pdf.AddUTF8FontFromBytes(font, "I", fontOblique)

	d := &document{pdf: pdf, now: now}
	pdf.SetFooterFunc(d.footer)
	pdf.AddPage()
	return d
}
