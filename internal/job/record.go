// Package job defines the Job Record: the nested snapshot of one mitigation
// job that the field form assembles and hands to the formatter, the narrative
// dispatcher and the report renderer.
//
// Every field is optional. Decoding is lenient so that records saved by older
// form revisions still load.
package job

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Record is the root aggregate for one job.
type Record struct {
	JobDetails      JobDetails       `json:"jobDetails"`
	Insured         Insured          `json:"insured"`
	Insurance       Insurance        `json:"insurance"`
	Inspection      Inspection       `json:"inspection"`
	Rooms           []Room           `json:"rooms"`
	TechHours       []TechHourEntry  `json:"techHours"`
	PsychroReadings []PsychroReading `json:"psychroReadings"`
}

// UnmarshalJSON accepts the older top-level "initialInspection" key.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	var aux struct {
		plain
		InitialInspection *Inspection `json:"initialInspection"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Record(aux.plain)
	if r.Inspection.IsZero() && aux.InitialInspection != nil {
		r.Inspection = *aux.InitialInspection
	}
	return nil
}

// DisplayName is the default label for a saved snapshot of the record.
func (r Record) DisplayName() string {
	company := r.JobDetails.CompanyName.String()
	number := r.JobDetails.JobNumber.String()
	switch {
	case company != "" && number != "":
		return fmt.Sprintf("%s #%s", company, number)
	case number != "":
		return "Job #" + number
	case company != "":
		return company
	case !r.Insured.Name.Blank():
		return r.Insured.Name.String()
	default:
		return "Untitled job"
	}
}

// JobDetails is the job header shown at the top of the dossier and report.
type JobDetails struct {
	CompanyName    Text         `json:"companyName"`
	JobNumber      Text         `json:"jobNumber"`
	Priority       Priority     `json:"priority"`
	Technician     Text         `json:"technician"`
	Supervisor     Text         `json:"supervisor"`
	DateOfLoss     Text         `json:"dateOfLoss"`
	InspectionDate Text         `json:"inspectionDate"`
	LossCategory   LossCategory `json:"lossCategory"`
	IICRCClass     IICRCClass   `json:"iicrcClass"`
	SourceOfLoss   Text         `json:"sourceOfLoss"`
}

// UnmarshalJSON resolves the loss category from lossCategory, then the
// deprecated lossType and category keys, first non-empty wins.
func (d *JobDetails) UnmarshalJSON(data []byte) error {
	type plain JobDetails
	var aux struct {
		plain
		LossType LossCategory `json:"lossType"`
		Category LossCategory `json:"category"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*d = JobDetails(aux.plain)
	if d.LossCategory == "" {
		d.LossCategory = aux.LossType
	}
	if d.LossCategory == "" {
		d.LossCategory = aux.Category
	}
	return nil
}

// IsZero reports whether no job detail was provided.
func (d JobDetails) IsZero() bool {
	return allBlank(d.CompanyName, d.JobNumber, Text(d.Priority), d.Technician, d.Supervisor,
		d.DateOfLoss, d.InspectionDate, Text(d.LossCategory), Text(d.IICRCClass), d.SourceOfLoss)
}

// Insured is the property owner or policyholder.
type Insured struct {
	Name    Text `json:"name"`
	Phone   Text `json:"phone"`
	Email   Text `json:"email"`
	Address Text `json:"address"`
	City    Text `json:"city"`
	State   Text `json:"state"`
	Zip     Text `json:"zip"`
}

// PostalAddress joins the address fields as "street, city, state zip",
// skipping blanks. It returns "" when every part is blank.
func (i Insured) PostalAddress() string {
	var parts []string
	if s := i.Address.String(); s != "" {
		parts = append(parts, s)
	}
	if s := i.City.String(); s != "" {
		parts = append(parts, s)
	}
	stateZip := strings.TrimSpace(i.State.String() + " " + i.Zip.String())
	if stateZip != "" {
		parts = append(parts, stateZip)
	}
	return strings.Join(parts, ", ")
}

// IsZero reports whether every field is blank.
func (i Insured) IsZero() bool {
	return allBlank(i.Name, i.Phone, i.Email, i.Address, i.City, i.State, i.Zip)
}

// Insurance holds the carrier and adjuster details for the claim.
type Insurance struct {
	Carrier       Text `json:"carrier"`
	PolicyNumber  Text `json:"policyNumber"`
	ClaimNumber   Text `json:"claimNumber"`
	Deductible    Text `json:"deductible"`
	AdjusterName  Text `json:"adjusterName"`
	AdjusterPhone Text `json:"adjusterPhone"`
	AdjusterEmail Text `json:"adjusterEmail"`
	BillingStatus Text `json:"billingStatus"`
}

// IsZero reports whether every carrier field is blank.
func (i Insurance) IsZero() bool {
	return allBlank(i.Carrier, i.PolicyNumber, i.ClaimNumber, i.Deductible,
		i.AdjusterName, i.AdjusterPhone, i.AdjusterEmail, i.BillingStatus)
}

// Inspection is the initial walk-through of the loss.
type Inspection struct {
	Inspector    Text                `json:"inspector"`
	Date         Text                `json:"date"`
	Observations Text                `json:"observations"`
	Checklist    InspectionChecklist `json:"checklist"`
}

// IsZero reports whether the inspection is empty, checklist included.
func (i Inspection) IsZero() bool {
	return allBlank(i.Inspector, i.Date, i.Observations) && len(i.Checklist) == 0
}

// Room is one physical space. Its position in Record.Rooms is its number in
// both the dossier and the report.
type Room struct {
	Name      Text          `json:"name"`
	Floor     Text          `json:"floor"`
	Narrative Text          `json:"narrative"`
	Checklist RoomChecklist `json:"checklist"`
	DryLogs   []DryLogEntry `json:"dryLogs"`
	Photos    []Photo       `json:"photos"`
}

// UnmarshalJSON accepts the older "roomName" key.
func (r *Room) UnmarshalJSON(data []byte) error {
	type plain Room
	var aux struct {
		plain
		RoomName Text `json:"roomName"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Room(aux.plain)
	if r.Name.Blank() {
		r.Name = aux.RoomName
	}
	return nil
}

// DryLogEntry is one dated moisture reading for a room.
type DryLogEntry struct {
	Date    Text `json:"date"`
	Time    Text `json:"time"`
	Reading Text `json:"reading"`
}

// IsZero reports whether the dry log entry carries nothing.
func (e DryLogEntry) IsZero() bool {
	return allBlank(e.Date, e.Time, e.Reading)
}

// Photo is attachment metadata only. Image bytes never travel with a record.
type Photo struct {
	Name    Text `json:"name"`
	Caption Text `json:"caption"`
}

// UnmarshalJSON accepts a bare filename string as well as an object.
func (p *Photo) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] != '{' {
		var name Text
		if err := name.UnmarshalJSON(trimmed); err != nil {
			return err
		}
		*p = Photo{Name: name}
		return nil
	}
	type plain Photo
	var aux plain
	if err := json.Unmarshal(trimmed, &aux); err != nil {
		return err
	}
	*p = Photo(aux)
	return nil
}

// Label is the caption, the filename, or both.
func (p Photo) Label() string {
	name, caption := p.Name.String(), p.Caption.String()
	switch {
	case name != "" && caption != "":
		return fmt.Sprintf("%s (%s)", name, caption)
	case name != "":
		return name
	default:
		return caption
	}
}

// TechHourEntry is one technician visit on the timesheet.
type TechHourEntry struct {
	Date    Text `json:"date"`
	TimeIn  Text `json:"timeIn"`
	TimeOut Text `json:"timeOut"`
	Notes   Text `json:"notes"`
}

// IsZero reports whether the entry is blank.
func (e TechHourEntry) IsZero() bool {
	return allBlank(e.Date, e.TimeIn, e.TimeOut, e.Notes)
}

// PsychroReading is one psychrometric snapshot. Values are recorded text,
// never interpreted numerically.
type PsychroReading struct {
	Date Text `json:"date"`
	Time Text `json:"time"`
	Temp Text `json:"temp"`
	RH   Text `json:"rh"`
	GPP  Text `json:"gpp"`
}

// IsZero reports whether no reading field was filled in.
func (r PsychroReading) IsZero() bool {
	return allBlank(r.Date, r.Time, r.Temp, r.RH, r.GPP)
}
