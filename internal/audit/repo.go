package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/suPer8Hu/voice-intake/internal/intake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("audit trail not found")

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Apply records one intake event. Redelivery of the same event is a no-op, and an older
// snapshot never overwrites a newer one.
func (r *Repo) Apply(ctx context.Context, ev intake.Event) error {
	if ev.ID == "" || ev.SessionID == "" {
		return fmt.Errorf("apply event: missing id or session id")
	}
	row, err := callSessionOf(ev.Session)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertSession(tx, row); err != nil {
			return err
		}

		var entries []TranscriptEntry
		stage := ev.Session.Stage.String()
		n := len(ev.Session.History)
		if ev.Patient != nil {
			entries = append(entries, entryOf(ev.ID+"-p", ev.SessionID, stage, n-2, *ev.Patient))
		}
		if ev.Assistant != nil {
			entries = append(entries, entryOf(ev.ID+"-a", ev.SessionID, stage, n-1, *ev.Assistant))
		}
		if len(entries) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entries).Error; err != nil {
				return fmt.Errorf("insert transcript: %w", err)
			}
		}

		if ev.Extraction != nil {
			payload, err := json.Marshal(ev.Extraction)
			if err != nil {
				return fmt.Errorf("encode extraction: %w", err)
			}
			ex := MedicalExtraction{
				ID:         ev.ID,
				SessionID:  ev.SessionID,
				Payload:    string(payload),
				Confidence: ev.Extraction.Confidence,
				CreatedAt:  ev.OccurredAt,
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&ex).Error; err != nil {
				return fmt.Errorf("insert extraction: %w", err)
			}
		}
		return nil
	})
}

func upsertSession(tx *gorm.DB, row CallSession) error {
	var existing CallSession
	err := tx.Where("id = ?", row.ID).Take(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert call session: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("load call session: %w", err)
	}

	if row.UpdatedAt.Before(existing.UpdatedAt) {
		return nil
	}
	// Select("*") so zero values like red_flag_raised=false are still written.
	if err := tx.Model(&existing).Select("*").Omit("id", "created_at").Updates(row).Error; err != nil {
		return fmt.Errorf("update call session: %w", err)
	}
	return nil
}

func callSessionOf(s intake.Session) (CallSession, error) {
	data, err := json.Marshal(s.MedicalData)
	if err != nil {
		return CallSession{}, fmt.Errorf("encode medical data: %w", err)
	}
	var meta []byte
	if len(s.Metadata) > 0 {
		if meta, err = json.Marshal(s.Metadata); err != nil {
			return CallSession{}, fmt.Errorf("encode metadata: %w", err)
		}
	}
	return CallSession{
		ID:            s.ID,
		PatientID:     s.PatientID,
		Stage:         s.Stage.String(),
		Status:        string(s.Status),
		TriageLevel:   string(s.TriageLevel),
		RedFlagRaised: s.RedFlagRaised,
		TurnCount:     s.TurnCount,
		MedicalData:   string(data),
		Metadata:      string(meta),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
		EndedAt:       s.EndedAt,
	}, nil
}

func entryOf(id, sessionID, stage string, seq int, t intake.Turn) TranscriptEntry {
	if seq < 0 {
		seq = 0
	}
	return TranscriptEntry{
		ID:        id,
		SessionID: sessionID,
		Seq:       seq,
		Role:      string(t.Role),
		Text:      t.Text,
		Stage:     stage,
		SpokenAt:  t.Timestamp,
	}
}

type ExtractionView struct {
	MedicalExtraction
	Data json.RawMessage `json:"data"`
}

type Trail struct {
	Session     CallSession       `json:"session"`
	MedicalData json.RawMessage   `json:"medical_data"`
	Transcript  []TranscriptEntry `json:"transcript"`
	Extractions []ExtractionView  `json:"extractions"`
}

// Trail returns everything recorded for a session, transcript oldest first.
func (r *Repo) Trail(ctx context.Context, sessionID string) (*Trail, error) {
	db := r.db.WithContext(ctx)

	var sess CallSession
	if err := db.Where("id = ?", sessionID).Take(&sess).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var entries []TranscriptEntry
	if err := db.Where("session_id = ?", sessionID).
		Order("seq ASC").
		Order("spoken_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}

	var rows []MedicalExtraction
	if err := db.Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	views := make([]ExtractionView, 0, len(rows))
	for _, row := range rows {
		views = append(views, ExtractionView{MedicalExtraction: row, Data: json.RawMessage(row.Payload)})
	}

	trail := &Trail{Session: sess, Transcript: entries, Extractions: views}
	if sess.MedicalData != "" {
		trail.MedicalData = json.RawMessage(sess.MedicalData)
	}
	return trail, nil
}
