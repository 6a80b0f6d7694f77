package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/kalambet/mitigate/internal/job"
)

const (
	font         = "DejaVu"
	marginX      = 18.0
	marginTop    = 18.0
	marginBottom = 20.0
	lineHeight   = 5.0
	listIndent   = 6.0
)

type document struct {
	pdf *fpdf.Fpdf
	now time.Time
}

func (d *document) footer() {
	d.pdf.SetY(-15)
	d.pdf.SetFont(font, "I", 8)
	d.pdf.SetTextColor(110, 110, 110)
	d.pdf.CellFormat(0, 8, fmt.Sprintf("Page %d", d.pdf.PageNo()), "", 0, "C", false, 0, "")
	d.pdf.SetTextColor(0, 0, 0)
}

func (d *document) titleBlock(title string, rec job.Record) {
	d.pdf.SetFont(font, "B", 18)
	d.pdf.CellFormat(0, 10, title, "", 1, "L", false, 0, "")

	jd := rec.JobDetails
	var ident []string
	if s := jd.CompanyName.String(); s != "" {
		ident = append(ident, s)
	}
	if s := jd.JobNumber.String(); s != "" {
		ident = append(ident, "Job #"+s)
	}
	if len(ident) > 0 {
		d.pdf.SetFont(font, "B", 12)
		d.pdf.CellFormat(0, 7, strings.Join(ident, " - "), "", 1, "L", false, 0, "")
	}

	summary := joinNonEmpty(" | ",
		labeled("Insured", rec.Insured.Name.String()),
		labeled("Loss", string(jd.LossCategory)),
		labeled("Class", string(jd.IICRCClass)),
	)
	if summary != "" {
		d.pdf.SetFont(font, "", 10)
		d.pdf.CellFormat(0, 6, summary, "", 1, "L", false, 0, "")
	}

	d.pdf.SetFont(font, "", 8)
	d.pdf.SetTextColor(110, 110, 110)
	d.pdf.CellFormat(0, 5, "Generated "+d.now.Format("January 2, 2006"), "", 1, "L", false, 0, "")
	d.pdf.SetTextColor(0, 0, 0)
	d.rule()
}

func (d *document) claimSection(ins job.Insured, carrier job.Insurance) {
	if ins.IsZero() && carrier.IsZero() {
		return
	}
	d.heading(SectionClaim)
	d.field("Insured", ins.Name)
	d.field("Phone", ins.Phone)
	d.field("Email", ins.Email)
	d.field("Address", job.Text(ins.PostalAddress()))
	d.field("Carrier", carrier.Carrier)
	d.field("Policy #", carrier.PolicyNumber)
	d.field("Claim #", carrier.ClaimNumber)
	d.field("Deductible", carrier.Deductible)

	adjuster := joinNonEmpty(", ",
		carrier.AdjusterName.String(), carrier.AdjusterPhone.String(), carrier.AdjusterEmail.String())
	d.field("Adjuster", job.Text(adjuster))
	d.field("Billing Status", carrier.BillingStatus)
}

func (d *document) inspectionSection(in job.Inspection) {
	if in.IsZero() {
		return
	}
	d.heading(SectionInspection)
	d.field("Inspector", in.Inspector)
	d.field("Date", in.Date)
	d.field("Checklist", job.Text(strings.Join(in.Checklist.Labels(), ", ")))
	if !in.Observations.Blank() {
		d.paragraph(in.Observations.String())
	}
}

func (d *document) techHoursSection(entries []job.TechHourEntry) {
	var lines []string
	for _, e := range entries {
		if e.IsZero() {
			continue
		}
		span := joinNonEmpty(" - ", e.TimeIn.String(), e.TimeOut.String())
		line := joinNonEmpty(": ", e.Date.String(), span)
		if notes := e.Notes.String(); notes != "" {
			line = joinNonEmpty(" ", line, "("+notes+")")
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return
	}
	d.heading(SectionTechHours)
	for _, l := range lines {
		d.bullet(0, l)
	}
}

func (d *document) roomsSection(rooms []job.Room) {
	if len(rooms) == 0 {
		return
	}
	d.heading(SectionRooms)
	for i, room := range rooms {
		d.subheading(fmt.Sprintf("Room %d: %s", i+1, room.Name.Or("Unnamed room")))
		d.field("Floor", room.Floor)
		d.field("Checklist", job.Text(strings.Join(room.Checklist.Labels(), ", ")))
		d.field("Narrative", room.Narrative)

		var photos []string
		for _, p := range room.Photos {
			if l := p.Label(); l != "" {
				photos = append(photos, l)
			}
		}
		d.field("Photos", job.Text(strings.Join(photos, ", ")))

		var logs []string
		for _, l := range room.DryLogs {
			if l.IsZero() {
				continue
			}
			when := joinNonEmpty(" ", l.Date.String(), l.Time.String())
			logs = append(logs, joinNonEmpty(": ", when, l.Reading.String()))
		}
		if len(logs) > 0 {
			d.label("Dry Logs:")
			for _, l := range logs {
				d.bullet(listIndent, l)
			}
		}
	}
}

func (d *document) psychroSection(readings []job.PsychroReading) {
	var lines []string
	for _, r := range readings {
		if r.IsZero() {
			continue
		}
		rh := r.RH.String()
		if rh != "" && !strings.HasSuffix(rh, "%") {
			rh += "%"
		}
		lines = append(lines, joinNonEmpty(" | ",
			joinNonEmpty(" ", r.Date.String(), r.Time.String()),
			labeled("Temp", r.Temp.String()),
			labeled("RH", rh),
			labeled("GPP", r.GPP.String()),
		))
	}
	if len(lines) == 0 {
		return
	}
	d.heading(SectionPsychro)
	for _, l := range lines {
		d.bullet(0, l)
	}
}

// textSection renders generated text verbatim under its own heading.
func (d *document) textSection(title, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	d.heading(title)
	d.paragraph(text)
}

func (d *document) heading(title string) {
	d.pdf.Ln(4)
	d.pdf.SetFont(font, "B", 13)
	d.pdf.SetTextColor(20, 60, 110)
	d.pdf.CellFormat(0, 8, title, "B", 1, "L", false, 0, "")
	d.pdf.SetTextColor(0, 0, 0)
	d.pdf.Ln(2)
}

func (d *document) subheading(s string) {
	d.pdf.Ln(1)
	d.pdf.SetFont(font, "B", 11)
	d.pdf.CellFormat(0, 6, s, "", 1, "L", false, 0, "")
}

// field writes "Label: value" and skips blank values.
func (d *document) field(label string, v job.Text) {
	if v.Blank() {
		return
	}
	d.pdf.SetFont(font, "", 10)
	d.pdf.MultiCell(0, lineHeight, label+": "+v.String(), "", "L", false)
}

func (d *document) label(s string) {
	d.pdf.SetFont(font, "", 10)
	d.pdf.CellFormat(0, lineHeight, s, "", 1, "L", false, 0, "")
}

func (d *document) bullet(indent float64, s string) {
	d.pdf.SetFont(font, "", 10)
	d.pdf.SetX(marginX + indent)
	d.pdf.MultiCell(0, lineHeight, "- "+s, "", "L", false)
}

func (d *document) paragraph(s string) {
	d.pdf.SetFont(font, "", 10)
	d.pdf.MultiCell(0, lineHeight, strings.TrimRight(s, " \n\t"), "", "L", false)
}

func (d *document) rule() {
	w, _ := d.pdf.GetPageSize()
	y := d.pdf.GetY() + 2
	d.pdf.SetDrawColor(180, 180, 180)
	d.pdf.Line(marginX, y, w-marginX, y)
	d.pdf.SetDrawColor(0, 0, 0)
	d.pdf.SetY(y + 2)
}

func labeled(label, v string) string {
	if v == "" {
		return ""
	}
	return label + ": " + v
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
