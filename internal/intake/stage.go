package intake

import (
	"fmt"
	"strings"
)

// Stage is one step of the interview protocol. Ordinals follow the nominal forward order.
type Stage int

const (
	StageGreeting Stage = iota
	StageConsent
	StageIdentification
	StageChiefComplaint
	StageSymptomProbing
	StageRedFlagCheck
	StageMedicalHistory
	StageSummarization
	StageTriageDecision
	StageSafeClose
	StageUrgentClose
	StageEnded

	stageCount
)

type advanceFunc func(message string, data MedicalData) bool

type stageDef struct {
	name string
	next Stage
	// advance is nil only for ENDED.
	advance advanceFunc
	// passThrough stages also evaluate their successor's predicate in the same turn.
	passThrough bool
	prompt      string
}

var stageTable = [stageCount]stageDef{
	StageGreeting: {
		name:        "greeting",
		next:        StageConsent,
		advance:     always,
		passThrough: true,
		prompt: `You are starting a medical intake call. Introduce yourself as an AI medical intake assistant (not a doctor).
Be warm but professional. Explain that you will gather information about their symptoms before they see a doctor, that you are an AI assistant and cannot diagnose or prescribe medication, and ask whether it is okay to proceed.
Keep it under 3 sentences.`,
	},
	StageConsent: {
		name:    "consent",
		next:    StageIdentification,
		advance: containsWord("yes", "yeah", "yep", "ok", "okay", "sure", "fine", "agree", "proceed", "consent"),
		prompt: `The patient needs to consent to the AI-assisted intake.
If they said yes/okay/sure, acknowledge and move forward.
If unclear, ask again: "Just to confirm, do you consent to this AI-assisted medical intake?"
Keep response under 2 sentences.`,
	},
	StageIdentification: {
		name:    "identification",
		next:    StageChiefComplaint,
		advance: minWords(2),
		prompt: `Ask for the patient's name and date of birth for record purposes.
Say something like: "May I have your name and date of birth, please?"
Keep it brief and professional.`,
	},
	StageChiefComplaint: {
		name:    "chief_complaint",
		next:    StageSymptomProbing,
		advance: minChars(11),
		prompt: `Now ask about their main concern.
Say: "What brings you in today? Please describe your main symptom or concern."
Be empathetic but focused on gathering medical information.`,
	},
	StageSymptomProbing: {
		name: "symptom_probing",
		next: StageRedFlagCheck,
		advance: func(_ string, data MedicalData) bool {
			return data.Severity != nil && data.OnsetDays != nil
		},
		prompt: `Based on their chief complaint, ask focused follow-up questions ONE AT A TIME:
- When did this start? (onset)
- On a scale of 1-10, how severe is the pain/discomfort?
- Is it constant or does it come and go?
- What makes it better or worse?
- Does it spread to other areas?

Ask only ONE question at a time, preferring whatever is still unknown. Be concise.`,
	},
	StageRedFlagCheck: {
		name:    "red_flag_check",
		next:    StageMedicalHistory,
		advance: always,
		prompt: `Screen for emergency red flags by asking:
"I need to ask some important safety questions. Have you experienced any of the following:
- Sudden severe headache?
- Chest pain or difficulty breathing?
- Numbness or weakness on one side?
- Loss of bladder or bowel control?
- High fever over 103°F/39.4°C?"

If YES to any, immediately note it as urgent.`,
	},
	StageMedicalHistory: {
		name:    "medical_history",
		next:    StageSummarization,
		advance: always,
		prompt: `Ask about relevant medical history:
"Do you have any ongoing medical conditions, take any medications regularly, or have any allergies I should note?"
Keep it to one question, they can list multiple things.`,
	},
	StageSummarization: {
		name:    "summarization",
		next:    StageTriageDecision,
		advance: containsWord("yes", "correct", "right", "accurate", "exactly"),
		prompt: `Summarize what you've learned in 2-3 sentences.
"Let me summarize: You're experiencing [complaint] for [duration] with severity [X]/10. [Key details]. Is that correct?"
Confirm accuracy before proceeding.`,
	},
	StageTriageDecision: {
		name:    "triage_decision",
		next:    StageSafeClose,
		advance: always,
		prompt: `Based on all information, communicate the triage recommendation:
- RED: Emergency symptoms present, needs immediate care
- AMBER: Concerning symptoms, should see doctor within 24-48 hours
- GREEN: Non-urgent, can schedule routine appointment

Communicate the recommendation clearly without diagnosing.`,
	},
	StageSafeClose: {
		name:    "safe_close",
		next:    StageEnded,
		advance: always,
		prompt: `Close the call safely:
"Thank you for sharing this information. Based on what you've told me, I recommend [timeframe]. A doctor will review this information. If your symptoms worsen, especially [relevant warning signs], please seek emergency care immediately. Take care, and feel better soon."
End warmly but professionally.`,
	},
	StageUrgentClose: {
		name:    "urgent_close",
		next:    StageEnded,
		advance: always,
		prompt: `This is an urgent situation. Say:
"Based on what you've described, I recommend you seek emergency medical care immediately. Please call emergency services or go to your nearest emergency room right away. Your safety is the priority. Do you need me to provide emergency contact numbers?"
Be calm but firm about urgency.`,
	},
	StageEnded: {
		name: "ended",
		next: StageEnded,
		prompt: `The intake is complete. Reply in one short sentence: thank the patient and remind them to seek emergency care if symptoms worsen.
Do not ask any further questions.`,
	},
}

func (s Stage) valid() bool { return s >= 0 && s < stageCount }

func (s Stage) String() string {
	if !s.valid() {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageTable[s].name
}

func (s Stage) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("invalid stage %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(b []byte) error {
	v, err := ParseStage(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func ParseStage(name string) (Stage, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i := Stage(0); i < stageCount; i++ {
		if stageTable[i].name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

// Prompt is the fixed system instruction for the stage. It is never shown to the patient.
func (s Stage) Prompt() string {
	if !s.valid() {
		return stageTable[StageSafeClose].prompt
	}
	return stageTable[s].prompt
}

func (s Stage) Terminal() bool { return s == StageEnded }

// Closing stages make the caller wind the call down.
func (s Stage) Closing() bool {
	return s == StageSafeClose || s == StageUrgentClose || s == StageEnded
}

func (s Stage) triggersTriage() bool {
	return s == StageTriageDecision || s == StageSafeClose || s == StageUrgentClose
}

func (s Stage) escalates() bool {
	return s == StageRedFlagCheck || s == StageTriageDecision
}

// Next returns the successor, forcing URGENT_CLOSE from the screening stages when a red flag
// is up.
func (s Stage) Next(redFlag bool) Stage {
	if redFlag && s.escalates() {
		return StageUrgentClose
	}
	if !s.valid() {
		return StageEnded
	}
	return stageTable[s].next
}

// Advance applies one turn's transition rule to the pre-turn stage.
func Advance(current Stage, message string, data MedicalData, redFlag bool) Stage {
	if current.Terminal() || !current.valid() {
		return current
	}
	def := stageTable[current]
	if !def.advance(message, data) {
		return current
	}
	next := current.Next(redFlag)
	if def.passThrough && next != current {
		return Advance(next, message, data, redFlag)
	}
	return next
}

func always(string, MedicalData) bool { return true }

func containsWord(words ...string) advanceFunc {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return func(message string, _ MedicalData) bool {
		for _, tok := range tokenize(message) {
			if _, ok := set[tok]; ok {
				return true
			}
		}
		return false
	}
}

func minWords(n int) advanceFunc {
	return func(message string, _ MedicalData) bool {
		return len(strings.Fields(message)) >= n
	}
}

func minChars(n int) advanceFunc {
	return func(message string, _ MedicalData) bool {
		return len([]rune(strings.TrimSpace(message))) >= n
	}
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '\'')
	})
}
