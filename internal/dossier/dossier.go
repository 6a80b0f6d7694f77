// Package dossier flattens a job.Record into the labeled plain-text context
// handed to the narrative generator. Every absent value renders as a literal
// placeholder, so Format is total over partially filled records.
package dossier

import (
	"fmt"
	"strings"

	"github.com/kalambet/mitigate/internal/job"
)

const (
	missing   = "N/A"
	emptyList = "None"
	indent    = "  "
	subIndent = "    "
)

// Section headers, in output order.
const (
	HeaderJob        = "JOB / LOSS DETAILS"
	HeaderInsured    = "INSURED"
	HeaderInsurance  = "INSURANCE / CARRIER"
	HeaderInspection = "INITIAL INSPECTION"
	HeaderTechHours  = "TECH HOURS"
	HeaderRooms      = "ROOMS"
	HeaderPsychro    = "PSYCHROMETRIC READINGS"
)

// Placeholder lines for empty lists.
const (
	NoTechHours = "No tech hours recorded."
	NoRooms     = "No rooms recorded."
	NoDryLogs   = "No dry logs recorded."
	NoReadings  = "No psychrometric readings recorded."
)

// Format renders the whole record. Sections are separated by a blank line and
// list entries keep the record's order.
func Format(r job.Record) string {
	var b builder
	writeJob(&b, r.JobDetails)
	b.blank()
	writeInsured(&b, r.Insured)
	b.blank()
	writeInsurance(&b, r.Insurance)
	b.blank()
	writeInspection(&b, r.Inspection)
	b.blank()
	writeTechHours(&b, r.TechHours)
	b.blank()
	writeRooms(&b, r.Rooms)
	b.blank()
	writePsychro(&b, r.PsychroReadings)
	return b.String()
}

// FormatPsychrometrics renders only the psychrometric section.
func FormatPsychrometrics(readings []job.PsychroReading) string {
	var b builder
	writePsychro(&b, readings)
	return b.String()
}

func writeJob(b *builder, d job.JobDetails) {
	b.line(HeaderJob)
	b.field("", "Company", d.CompanyName)
	b.field("", "Job #", d.JobNumber)
	b.field("", "Priority", job.Text(d.Priority))
	b.field("", "Technician", d.Technician)
	b.field("", "Supervisor", d.Supervisor)
	b.field("", "Date of Loss", d.DateOfLoss)
	b.field("", "Inspection Date", d.InspectionDate)
	b.field("", "Loss Category", job.Text(d.LossCategory))
	b.field("", "IICRC Class", job.Text(d.IICRCClass))
	b.field("", "Source of Loss", d.SourceOfLoss)
}

func writeInsured(b *builder, i job.Insured) {
	b.line(HeaderInsured)
	b.field("", "Name", i.Name)
	b.field("", "Phone", i.Phone)
	b.field("", "Email", i.Email)
	b.field("", "Address", job.Text(i.PostalAddress()))
}

func writeInsurance(b *builder, i job.Insurance) {
	b.line(HeaderInsurance)
	b.field("", "Carrier", i.Carrier)
	b.field("", "Policy #", i.PolicyNumber)
	b.field("", "Claim #", i.ClaimNumber)
	b.field("", "Deductible", i.Deductible)
	b.field("", "Adjuster", i.AdjusterName)
	b.field("", "Adjuster Phone", i.AdjusterPhone)
	b.field("", "Adjuster Email", i.AdjusterEmail)
	b.field("", "Billing Status", i.BillingStatus)
}

func writeInspection(b *builder, i job.Inspection) {
	b.line(HeaderInspection)
	b.field("", "Inspector", i.Inspector)
	b.field("", "Date", i.Date)
	b.field("", "Observations", i.Observations)
	b.list("", "Checklist", i.Checklist.Labels())
}

func writeTechHours(b *builder, entries []job.TechHourEntry) {
	b.line(HeaderTechHours)
	if len(entries) == 0 {
		b.line(NoTechHours)
		return
	}
	for _, e := range entries {
		b.line(fmt.Sprintf("- %s: %s - %s (%s)",
			e.Date.Or(missing), e.TimeIn.Or(missing), e.TimeOut.Or(missing), e.Notes.Or(missing)))
	}
}

func writeRooms(b *builder, rooms []job.Room) {
	b.line(HeaderRooms)
	if len(rooms) == 0 {
		b.line(NoRooms)
		return
	}
	for i, room := range rooms {
		b.line(fmt.Sprintf("Room %d: %s", i+1, room.Name.Or(missing)))
		b.field(indent, "Floor", room.Floor)
		b.field(indent, "Narrative", room.Narrative)
		b.list(indent, "Checklist", room.Checklist.Labels())

		photos := make([]string, 0, len(room.Photos))
		for _, p := range room.Photos {
			if l := p.Label(); l != "" {
				photos = append(photos, l)
			}
		}
		b.list(indent, "Photos", photos)

		b.line(indent + "Dry Logs:")
		if len(room.DryLogs) == 0 {
			b.line(subIndent + "- " + NoDryLogs)
			continue
		}
		for _, l := range room.DryLogs {
			b.line(fmt.Sprintf("%s- %s %s: %s", subIndent,
				l.Date.Or(missing), l.Time.Or(missing), l.Reading.Or(missing)))
		}
	}
}

func writePsychro(b *builder, readings []job.PsychroReading) {
	b.line(HeaderPsychro)
	if len(readings) == 0 {
		b.line(NoReadings)
		return
	}
	for _, r := range readings {
		b.line(fmt.Sprintf("- %s %s | Temp: %s | RH: %s | GPP: %s",
			r.Date.Or(missing), r.Time.Or(missing), r.Temp.Or(missing), percent(r.RH), r.GPP.Or(missing)))
	}
}

// percent appends a % sign to a recorded humidity unless it already has one.
func percent(rh job.Text) string {
	s := rh.String()
	if s == "" {
		return missing
	}
	if strings.HasSuffix(s, "%") {
		return s
	}
	return s + "%"
}

type builder struct {
	sb strings.Builder
}

func (b *builder) line(s string) {
	b.sb.WriteString(s)
	b.sb.WriteByte('\n')
}

func (b *builder) blank() { b.sb.WriteByte('\n') }

func (b *builder) field(prefix, label string, v job.Text) {
	b.line(prefix + label + ": " + v.Or(missing))
}

func (b *builder) list(prefix, label string, items []string) {
	if len(items) == 0 {
		b.line(prefix + label + ": " + emptyList)
		return
	}
	b.line(prefix + label + ": " + strings.Join(items, ", "))
}

func (b *builder) String() string {
	return strings.TrimRight(b.sb.String(), "\n")
}
