package intake

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeTriage(t *testing.T) {
	cases := []struct {
		name    string
		redFlag bool
		data    MedicalData
		want    TriageLevel
	}{
		{"red flag wins over everything", true, MedicalData{Severity: ip(2), TriageHint: sp("GREEN")}, TriageRed},
		{"hint used when valid", false, MedicalData{Severity: ip(9), TriageHint: sp("GREEN")}, TriageGreen},
		{"invalid hint ignored", false, MedicalData{Severity: ip(9), TriageHint: sp("??")}, TriageAmber},
		{"severity 9 is amber", false, MedicalData{Severity: ip(9)}, TriageAmber},
		{"severity 8 is amber", false, MedicalData{Severity: ip(8)}, TriageAmber},
		{"severity 7 is green", false, MedicalData{Severity: ip(7)}, TriageGreen},
		{"unknown severity defaults to green", false, MedicalData{}, TriageGreen},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ComputeTriage(tc.redFlag, tc.data))
		})
	}
}

func TestApplyTriage_OnlyOnTriageStages(t *testing.T) {
	s := NewSession("x", time.Now())
	s.MedicalData.Severity = ip(9)

	s.Stage = StageSummarization
	applyTriage(s)
	assert.Equal(t, TriageUnset, s.TriageLevel)

	s.Stage = StageTriageDecision
	applyTriage(s)
	assert.Equal(t, TriageAmber, s.TriageLevel)

	// written once
	s.MedicalData.Severity = ip(2)
	s.Stage = StageSafeClose
	applyTriage(s)
	assert.Equal(t, TriageAmber, s.TriageLevel)
}

func TestApplyTriage_UrgentCloseKeepsWrittenLevel(t *testing.T) {
	s := NewSession("x", time.Now())
	s.TriageLevel = TriageGreen
	s.RedFlagRaised = true
	s.Stage = StageUrgentClose
	applyTriage(s)
	assert.Equal(t, TriageGreen, s.TriageLevel)
}

func TestApplyTriage_FirstUrgentCloseEntryIsRed(t *testing.T) {
	s := NewSession("x", time.Now())
	s.RedFlagRaised = true
	s.Stage = StageUrgentClose
	applyTriage(s)
	assert.Equal(t, TriageRed, s.TriageLevel)
}

func TestParseTriageLevel(t *testing.T) {
	lvl, ok := ParseTriageLevel(" red ")
	assert.True(t, ok)
	assert.Equal(t, TriageRed, lvl)

	_, ok = ParseTriageLevel("")
	assert.False(t, ok)
}
