package narrative

import (
	"fmt"
	"strings"
)

// Kind names one generation task.
type Kind string

const (
	KindSummary        Kind = "summary"
	KindPsychrometrics Kind = "psychrometrics"
	KindScope          Kind = "scope"
	KindHazard         Kind = "hazard"
	KindPhoto          Kind = "photo"
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{KindSummary, KindPsychrometrics, KindScope, KindHazard, KindPhoto}

// ReportKinds are the text kinds that feed a rendered report.
var ReportKinds = []Kind{KindSummary, KindPsychrometrics, KindScope, KindHazard}

var kindAliases = map[string]Kind{
	"summary":        KindSummary,
	"psychrometrics": KindPsychrometrics,
	"psychro":        KindPsychrometrics,
	"scope":          KindScope,
	"scope-only":     KindScope,
	"hazard":         KindHazard,
	"hazard-plan":    KindHazard,
	"photo":          KindPhoto,
	"room-photo":     KindPhoto,
}

// ParseKind resolves a kind name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown narrative kind %q (want one of summary, psychrometrics, scope, hazard, photo)", s)
	}
	return k, nil
}

// Placeholder is the user-visible text shown in place of a failed generation.
func (k Kind) Placeholder() string {
	switch k {
	case KindSummary:
		return "Error generating summary"
	case KindPsychrometrics:
		return "Error analyzing psychrometric readings"
	case KindScope:
		return "Error generating scope of work"
	case KindHazard:
		return "Error generating hazard plan"
	case KindPhoto:
		return "Error analyzing photo"
	default:
		return "Error generating narrative"
	}
}
