package intake

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient   Role = "patient"
	RoleAssistant Role = "assistant"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

type TriageLevel string

const (
	TriageUnset TriageLevel = ""
	TriageRed   TriageLevel = "RED"
	TriageAmber TriageLevel = "AMBER"
	TriageGreen TriageLevel = "GREEN"
)

type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the whole state of one interview; the Store replaces it wholesale on every write.
type Session struct {
	ID            string            `json:"id"`
	PatientID     string            `json:"patient_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Stage         Stage             `json:"stage"`
	History       []Turn            `json:"history"`
	MedicalData   MedicalData       `json:"medical_data"`
	RedFlagRaised bool              `json:"red_flag_raised"`
	TriageLevel   TriageLevel       `json:"triage_level,omitempty"`
	Status        Status            `json:"status"`
	TurnCount     int               `json:"turn_count"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	EndedAt       *time.Time        `json:"ended_at,omitempty"`
}

func NewSessionID() string {
	return uuid.NewString()
}

// NewSession returns the initial state for id: GREETING stage, empty record.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:          id,
		Stage:       StageGreeting,
		History:     []Turn{},
		MedicalData: MedicalData{RedFlags: map[string]bool{}, Symptoms: []string{}},
		Status:      StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// PatientTranscript joins every patient utterance, oldest first.
func (s *Session) PatientTranscript() string {
	var b []byte
	for _, t := range s.History {
		if t.Role != RolePatient {
			continue
		}
		if len(b) > 0 {
			b = append(b, ' ')
		}
		b = append(b, t.Text...)
	}
	return string(b)
}

// Window returns the last n history entries.
func (s *Session) Window(n int) []Turn {
	if n <= 0 || len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

func (s *Session) Ended() bool {
	return s.Status == StatusEnded || s.Stage == StageEnded
}

// finalize marks the session ended; idempotent.
func (s *Session) finalize(now time.Time) {
	s.Stage = StageEnded
	s.Status = StatusEnded
	if s.EndedAt == nil {
		s.EndedAt = &now
	}
	s.UpdatedAt = now
}
