// Package audit keeps the relational record of intake calls for clinician review.
package audit

import "time"

type CallSession struct {
	ID            string     `gorm:"primaryKey;size:36" json:"session_id"`
	PatientID     string     `gorm:"type:varchar(64);index" json:"patient_id,omitempty"`
	Stage         string     `gorm:"type:varchar(32);not null" json:"state"`
	Status        string     `gorm:"type:varchar(16);index;not null" json:"status"`
	TriageLevel   string     `gorm:"type:varchar(8);index" json:"triage_level,omitempty"`
	RedFlagRaised bool       `gorm:"not null;default:false" json:"red_flag_raised"`
	TurnCount     int        `gorm:"not null;default:0" json:"turn_count"`
	MedicalData   string     `gorm:"type:text" json:"-"`
	Metadata      string     `gorm:"type:text" json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime:false" json:"updated_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

func (CallSession) TableName() string { return "call_sessions" }

type TranscriptEntry struct {
	// event id + role suffix, so redelivered events insert nothing new
	ID        string    `gorm:"primaryKey;size:32" json:"id"`
	SessionID string    `gorm:"size:36;not null;index:idx_transcript_session_seq,priority:1" json:"session_id"`
	Seq       int       `gorm:"not null;index:idx_transcript_session_seq,priority:2" json:"seq"` // position in the session history
	Role      string    `gorm:"type:varchar(16);not null" json:"role"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	Stage     string    `gorm:"type:varchar(32)" json:"state"`
	SpokenAt  time.Time `gorm:"not null" json:"timestamp"`
	CreatedAt time.Time `json:"-"`
}

func (TranscriptEntry) TableName() string { return "transcript_entries" }

type MedicalExtraction struct {
	ID         string    `gorm:"primaryKey;size:26" json:"id"` // ULID of the originating event
	SessionID  string    `gorm:"size:36;not null;index" json:"session_id"`
	Payload    string    `gorm:"type:text;not null" json:"-"`
	Confidence float64   `gorm:"not null;default:0" json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

func (MedicalExtraction) TableName() string { return "medical_extractions" }
