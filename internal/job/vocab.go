package job

import (
	"bytes"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

// Priority is the dispatch priority of a job.
type Priority string

const (
	PriorityStandard   Priority = "Standard"
	PriorityEmergency  Priority = "Emergency"
	PriorityAfterHours Priority = "After Hours"
	PriorityHigh       Priority = "High"
)

var priorities = []Priority{PriorityStandard, PriorityEmergency, PriorityAfterHours, PriorityHigh}

func (p Priority) Known() bool {
	for _, v := range priorities {
		if p == v {
			return true
		}
	}
	return false
}

func (p *Priority) UnmarshalJSON(data []byte) error {
	var t Text
	if err := t.UnmarshalJSON(data); err != nil {
		return err
	}
	*p = Priority(t.String())
	return nil
}

// IICRCClass is the IICRC evaporation class label (Class 1-4).
type IICRCClass string

const (
	Class1 IICRCClass = "Class 1"
	Class2 IICRCClass = "Class 2"
	Class3 IICRCClass = "Class 3"
	Class4 IICRCClass = "Class 4"
)

var classes = []IICRCClass{Class1, Class2, Class3, Class4}

func (c IICRCClass) Known() bool {
	for _, v := range classes {
		if c == v {
			return true
		}
	}
	return false
}

func (c *IICRCClass) UnmarshalJSON(data []byte) error {
	var t Text
	if err := t.UnmarshalJSON(data); err != nil {
		return err
	}
	*c = IICRCClass(t.String())
	return nil
}

// LossCategory is the IICRC water contamination category (Category 1-3).
// Older clients sent it as lossType or category; see JobDetails.
type LossCategory string

const (
	Category1 LossCategory = "Category 1"
	Category2 LossCategory = "Category 2"
	Category3 LossCategory = "Category 3"
)

var categories = []LossCategory{Category1, Category2, Category3}

func (c LossCategory) Known() bool {
	for _, v := range categories {
		if c == v {
			return true
		}
	}
	return false
}

func (c *LossCategory) UnmarshalJSON(data []byte) error {
	var t Text
	if err := t.UnmarshalJSON(data); err != nil {
		return err
	}
	*c = NormalizeLossCategory(t.String())
	return nil
}

var categoryRx = regexp.MustCompile(`(?i)^(?:cat(?:egory)?\.?\s*)?([1-3])\b`)

// NormalizeLossCategory maps "2", "cat 2", "Category 2 (Gray Water)" and
// similar spellings to the canonical label. Anything else is returned as-is.
func NormalizeLossCategory(s string) LossCategory {
	s = strings.TrimSpace(s)
	m := categoryRx.FindStringSubmatch(s)
	if m == nil {
		return LossCategory(s)
	}
	return LossCategory("Category " + m[1])
}

// InspectionFlag is one label of the initial-inspection checklist.
type InspectionFlag string

const (
	FlagStandingWater      InspectionFlag = "Standing Water Present"
	FlagVisibleMold        InspectionFlag = "Visible Mold"
	FlagOdor               InspectionFlag = "Odor Present"
	FlagElectricalHazard   InspectionFlag = "Electrical Hazard"
	FlagStructuralDamage   InspectionFlag = "Structural Damage"
	FlagContentsAffected   InspectionFlag = "Contents Affected"
	FlagSewage             InspectionFlag = "Sewage / Black Water"
	FlagAsbestosSuspected  InspectionFlag = "Asbestos Suspected"
	FlagLeadPaintSuspected InspectionFlag = "Lead Paint Suspected"
	FlagMoistureMapped     InspectionFlag = "Moisture Mapping Completed"
	FlagPhotosTaken        InspectionFlag = "Photos Taken"
	FlagWalkthrough        InspectionFlag = "Customer Walkthrough Completed"
)

// InspectionVocabulary lists the inspection checklist labels in display order.
var InspectionVocabulary = []InspectionFlag{
	FlagStandingWater, FlagVisibleMold, FlagOdor, FlagElectricalHazard,
	FlagStructuralDamage, FlagContentsAffected, FlagSewage, FlagAsbestosSuspected,
	FlagLeadPaintSuspected, FlagMoistureMapped, FlagPhotosTaken, FlagWalkthrough,
}

// RoomAction is one label of the per-room demolition/equipment checklist.
type RoomAction string

const (
	ActionBaseboardsRemoved RoomAction = "Baseboards Removed"
	ActionFloodCut          RoomAction = "Drywall Flood Cut"
	ActionCarpetRemoved     RoomAction = "Carpet Removed"
	ActionPadRemoved        RoomAction = "Pad Removed"
	ActionInsulationRemoved RoomAction = "Insulation Removed"
	ActionCabinetsDetached  RoomAction = "Cabinets Detached"
	ActionAntimicrobial     RoomAction = "Antimicrobial Applied"
	ActionAirMovers         RoomAction = "Air Movers Placed"
	ActionDehumidifier      RoomAction = "Dehumidifier Placed"
	ActionAirScrubber       RoomAction = "Air Scrubber Placed"
	ActionContainment       RoomAction = "Containment Installed"
	ActionMoistureReadings  RoomAction = "Moisture Readings Taken"
)

// RoomVocabulary lists the room checklist labels in display order.
var RoomVocabulary = []RoomAction{
	ActionBaseboardsRemoved, ActionFloodCut, ActionCarpetRemoved, ActionPadRemoved,
	ActionInsulationRemoved, ActionCabinetsDetached, ActionAntimicrobial, ActionAirMovers,
	ActionDehumidifier, ActionAirScrubber, ActionContainment, ActionMoistureReadings,
}

// InspectionChecklist is the set of selected inspection labels, in selection order.
type InspectionChecklist []InspectionFlag

func (c *InspectionChecklist) UnmarshalJSON(data []byte) error {
	labels, err := decodeLabels(data, stringsOf(InspectionVocabulary))
	if err != nil {
		return err
	}
	out := make(InspectionChecklist, len(labels))
	for i, l := range labels {
		out[i] = InspectionFlag(l)
	}
	*c = out
	return nil
}

func (c InspectionChecklist) Labels() []string { return stringsOf(c) }

// Unknown returns selected labels that are not part of InspectionVocabulary.
func (c InspectionChecklist) Unknown() []string {
	return unknownLabels(c.Labels(), stringsOf(InspectionVocabulary))
}

// RoomChecklist is the set of selected room labels, in selection order.
type RoomChecklist []RoomAction

func (c *RoomChecklist) UnmarshalJSON(data []byte) error {
	labels, err := decodeLabels(data, stringsOf(RoomVocabulary))
	if err != nil {
		return err
	}
	out := make(RoomChecklist, len(labels))
	for i, l := range labels {
		out[i] = RoomAction(l)
	}
	*c = out
	return nil
}

func (c RoomChecklist) Labels() []string { return stringsOf(c) }

// Unknown returns selected labels that are not part of RoomVocabulary.
func (c RoomChecklist) Unknown() []string {
	return unknownLabels(c.Labels(), stringsOf(RoomVocabulary))
}

func stringsOf[T ~string](in []T) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		out = append(out, string(v))
	}
	return out
}

// decodeLabels accepts either an array of labels or an object of
// label -> selected flags (an older client shape). The result is
// de-duplicated, keeps first-seen order for arrays, and vocabulary order
// (then alphabetical) for objects.
func decodeLabels(data []byte, vocab []string) ([]string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] == 'n' {
		return nil, nil
	}

	var raw []string
	switch data[0] {
	case '[':
		var items []Text
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
		for _, it := range items {
			raw = append(raw, it.String())
		}
	case '{':
		var flags map[string]Text
		if err := json.Unmarshal(data, &flags); err != nil {
			return nil, err
		}
		for label, v := range flags {
			if isTruthy(v) {
				raw = append(raw, strings.TrimSpace(label))
			}
		}
		rank := make(map[string]int, len(vocab))
		for i, v := range vocab {
			rank[v] = i
		}
		sort.Slice(raw, func(i, j int) bool {
			ri, iok := rank[raw[i]]
			rj, jok := rank[raw[j]]
			switch {
			case iok && jok:
				return ri < rj
			case iok != jok:
				return iok
			default:
				return raw[i] < raw[j]
			}
		})
	default:
		var single Text
		if err := single.UnmarshalJSON(data); err != nil {
			return nil, err
		}
		raw = append(raw, single.String())
	}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out, nil
}

func isTruthy(v Text) bool {
	switch strings.ToLower(v.String()) {
	case "", "false", "0", "no", "off":
		return false
	}
	return true
}

func unknownLabels(labels, vocab []string) []string {
	known := make(map[string]bool, len(vocab))
	for _, v := range vocab {
		known[v] = true
	}
	var out []string
	for _, l := range labels {
		if !known[l] {
			out = append(out, l)
		}
	}
	return out
}
