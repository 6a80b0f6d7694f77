package narrative

// TemplateVersion identifies the instruction set below. Bump it whenever an
// instruction or heading changes.
const TemplateVersion = "2024-06"

// Template is the fixed instruction wrapped around the job context for one kind.
type Template struct {
	Version     string
	System      string
	Instruction string
	Vision      bool
}

// Summary section headings, in order.
var SummaryHeadings = []string{
	"1. Claim / Loss Summary",
	"2. Initial Inspection Summary",
	"3. Detailed Scope of Work",
	"4. Room-by-Room Description",
	"5. Equipment & Drying Strategy",
	"6. Psychrometric / Drying Progression",
	"7. Tech Hours & Site Visits",
	"8. Final Recommendations / Handoff",
}

// Hazard plan section headings, in order.
var HazardHeadings = []string{
	"Site Hazards",
	"Required PPE",
	"Controls & Procedures",
	"Special Considerations",
}

const supervisorSystem = `You are an expert water mitigation supervisor with 15+ years of field experience. You understand IICRC S500 standards and insurance carrier expectations, and you write insurer-ready documentation.`

var templates = map[Kind]Template{
	KindSummary: {
		Version: TemplateVersion,
		System:  supervisorSystem,
		Instruction: `Write a professional mitigation summary for an insurance adjuster. Justify all work performed: scope, equipment usage, rooms, dry logs, psychrometric progress, safety concerns, and why mitigation was necessary. Be concise but detailed. Avoid filler. Use insurance language.

Use exactly these section headings, verbatim and in this order:
1. Claim / Loss Summary
2. Initial Inspection Summary
3. Detailed Scope of Work
4. Room-by-Room Description
5. Equipment & Drying Strategy
6. Psychrometric / Drying Progression
7. Tech Hours & Site Visits
8. Final Recommendations / Handoff

Values shown as N/A or None were not recorded. Do not invent them.`,
	},
	KindPsychrometrics: {
		Version: TemplateVersion,
		System:  supervisorSystem,
		Instruction: `Review the psychrometric log below. Analyze the drying trend, identify concerns, and state whether conditions are moving toward dry standard.

Respond with exactly 2 short paragraphs followed by 3 bullet points of next steps. Describe the overall trend only. Do not list or restate individual readings.`,
	},
	KindScope: {
		Version: TemplateVersion,
		System:  supervisorSystem,
		Instruction: `Write the scope of work performed on this job as bullet points grouped by room, using each room name as a group label. Include demolition, equipment placement and monitoring actions supported by the job data.

Do not include pricing, line-item costs, coverage opinions or policy language.`,
	},
	KindHazard: {
		Version: TemplateVersion,
		System:  supervisorSystem,
		Instruction: `Write a site hazard and safety plan for the mitigation crew on this job.

Use exactly these section headings, verbatim and in this order:
Site Hazards
Required PPE
Controls & Procedures
Special Considerations

Base every item on the loss category, class, inspection checklist and observations provided.`,
	},
	KindPhoto: {
		Version: TemplateVersion,
		System:  supervisorSystem,
		Instruction: `Describe the visible water damage and mitigation work in this room photo for an insurance file. Respond with 3 to 6 concise bullet points. Mention only what is visible or consistent with the room checklist below.`,
		Vision:  true,
	},
}

// TemplateFor returns the instruction template for a kind.
func TemplateFor(k Kind) (Template, bool) {
	t, ok := templates[k]
	return t, ok
}
