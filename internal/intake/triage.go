package intake

import "strings"

const defaultSeverity = 5

func ParseTriageLevel(s string) (TriageLevel, bool) {
	switch TriageLevel(strings.ToUpper(strings.TrimSpace(s))) {
	case TriageRed:
		return TriageRed, true
	case TriageAmber:
		return TriageAmber, true
	case TriageGreen:
		return TriageGreen, true
	}
	return TriageUnset, false
}

// ComputeTriage derives the urgency class: red flag, then the model's hint, then severity.
func ComputeTriage(redFlag bool, data MedicalData) TriageLevel {
	if redFlag {
		return TriageRed
	}
	if data.TriageHint != nil {
		if lvl, ok := ParseTriageLevel(*data.TriageHint); ok {
			return lvl
		}
	}
	severity := defaultSeverity
	if data.Severity != nil {
		severity = *data.Severity
	}
	if severity >= 8 {
		return TriageAmber
	}
	return TriageGreen
}

// applyTriage sets the level once, on first entry into a triage stage. A level that
// is already written is never revised.
func applyTriage(s *Session) {
	if !s.Stage.triggersTriage() {
		return
	}
	if s.TriageLevel == TriageUnset {
		s.TriageLevel = ComputeTriage(s.RedFlagRaised, s.MedicalData)
	}
}
