package intake

import (
	"sort"
	"strings"

	"github.com/suPer8Hu/voice-intake/internal/ai"
)

// MedicalData is the cumulative extraction record of a session.
type MedicalData struct {
	ChiefComplaint *string         `json:"chief_complaint,omitempty"`
	BodyPart       *string         `json:"body_part,omitempty"`
	Severity       *int            `json:"severity,omitempty"`
	OnsetDays      *int            `json:"onset_days,omitempty"`
	Symptoms       []string        `json:"symptoms"`
	RedFlags       map[string]bool `json:"red_flags"`
	TriageHint     *string         `json:"triage_hint,omitempty"`
	Confidence     float64         `json:"confidence"`
}

// HasRedFlag reports whether any screened flag is true.
func (m MedicalData) HasRedFlag() bool {
	for _, v := range m.RedFlags {
		if v {
			return true
		}
	}
	return false
}

// Merge folds one extraction into the record. Known values are only replaced by non-null
// ones, the symptom set and flag map only grow, and a true flag stays true. Merging the
// same extraction twice is a no-op. The input record is not modified.
func Merge(rec MedicalData, ex ai.Extraction) MedicalData {
	out := rec.clone()

	if ex.ChiefComplaint != nil {
		out.ChiefComplaint = strPtr(*ex.ChiefComplaint)
	}
	if ex.BodyPart != nil {
		out.BodyPart = strPtr(*ex.BodyPart)
	}
	if ex.Severity != nil && *ex.Severity >= 1 && *ex.Severity <= 10 {
		out.Severity = intPtr(*ex.Severity)
	}
	if ex.OnsetDays != nil && *ex.OnsetDays >= 0 {
		out.OnsetDays = intPtr(*ex.OnsetDays)
	}
	if ex.TriageLevel != nil {
		if lvl, ok := ParseTriageLevel(*ex.TriageLevel); ok {
			out.TriageHint = strPtr(string(lvl))
		}
	}

	for flag, v := range ex.RedFlags {
		key := strings.ToLower(strings.TrimSpace(flag))
		if key == "" {
			continue
		}
		out.RedFlags[key] = out.RedFlags[key] || v
	}

	out.Symptoms = unionSymptoms(out.Symptoms, ex.Symptoms)
	out.Confidence = ex.Confidence
	return out
}

func (m MedicalData) clone() MedicalData {
	out := m
	out.RedFlags = make(map[string]bool, len(m.RedFlags))
	for k, v := range m.RedFlags {
		out.RedFlags[k] = v
	}
	out.Symptoms = append([]string{}, m.Symptoms...)
	if m.ChiefComplaint != nil {
		out.ChiefComplaint = strPtr(*m.ChiefComplaint)
	}
	if m.BodyPart != nil {
		out.BodyPart = strPtr(*m.BodyPart)
	}
	if m.Severity != nil {
		out.Severity = intPtr(*m.Severity)
	}
	if m.OnsetDays != nil {
		out.OnsetDays = intPtr(*m.OnsetDays)
	}
	if m.TriageHint != nil {
		out.TriageHint = strPtr(*m.TriageHint)
	}
	return out
}

// unionSymptoms keeps a sorted set, deduplicated case-insensitively.
func unionSymptoms(have, add []string) []string {
	seen := make(map[string]struct{}, len(have)+len(add))
	out := make([]string, 0, len(have)+len(add))
	for _, list := range [][]string{have, add} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			key := strings.ToLower(s)
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }
