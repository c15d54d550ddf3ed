package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/voice-intake/internal/ai"
	"github.com/suPer8Hu/voice-intake/internal/intake"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&CallSession{}, &TranscriptEntry{}, &MedicalExtraction{}))
	return db
}

func turnEvent(id string, sess *intake.Session, patient, assistant string, at time.Time) intake.Event {
	p := intake.Turn{Role: intake.RolePatient, Text: patient, Timestamp: at}
	a := intake.Turn{Role: intake.RoleAssistant, Text: assistant, Timestamp: at.Add(time.Second)}
	sev := 6
	return intake.Event{
		ID:         id,
		Kind:       intake.EventTurn,
		SessionID:  sess.ID,
		OccurredAt: at,
		Session:    *sess,
		Patient:    &p,
		Assistant:  &a,
		Extraction: &ai.Extraction{Severity: &sev, RedFlags: map[string]bool{}, Confidence: 0.8},
	}
}

func TestApply_RecordsTurnAndIsIdempotent(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	sess := intake.NewSession("sess-1", now)
	sess.Stage = intake.StageConsent
	sess.TurnCount = 1
	sess.UpdatedAt = now.Add(time.Second)

	ev := turnEvent("01HZZZZZZZZZZZZZZZZZZZZZZ1", sess, "hello", "hi, do you consent?", now)
	require.NoError(t, repo.Apply(ctx, ev))
	require.NoError(t, repo.Apply(ctx, ev))

	trail, err := repo.Trail(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "consent", trail.Session.Stage)
	assert.Equal(t, "active", trail.Session.Status)
	require.Len(t, trail.Transcript, 2)
	assert.Equal(t, "patient", trail.Transcript[0].Role)
	assert.Equal(t, "hello", trail.Transcript[0].Text)
	assert.Equal(t, "assistant", trail.Transcript[1].Role)
	require.Len(t, trail.Extractions, 1)
	assert.InDelta(t, 0.8, trail.Extractions[0].Confidence, 1e-9)

	var data map[string]any
	require.NoError(t, json.Unmarshal(trail.Extractions[0].Data, &data))
	assert.EqualValues(t, 6, data["severity"])
}

func TestApply_SessionEndedUpdatesSnapshot(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	sess := intake.NewSession("sess-2", now)
	require.NoError(t, repo.Apply(ctx, turnEvent("01HZZZZZZZZZZZZZZZZZZZZZZ2", sess, "hello", "hi", now)))

	ended := *sess
	ended.Stage = intake.StageEnded
	ended.Status = intake.StatusEnded
	ended.TriageLevel = intake.TriageRed
	ended.RedFlagRaised = true
	endedAt := now.Add(time.Minute)
	ended.EndedAt = &endedAt
	ended.UpdatedAt = endedAt
	require.NoError(t, repo.Apply(ctx, intake.Event{
		ID:         "01HZZZZZZZZZZZZZZZZZZZZZZ3",
		Kind:       intake.EventSessionEnded,
		SessionID:  "sess-2",
		OccurredAt: endedAt,
		Session:    ended,
	}))

	trail, err := repo.Trail(ctx, "sess-2")
	require.NoError(t, err)
	assert.Equal(t, "ended", trail.Session.Status)
	assert.Equal(t, "RED", trail.Session.TriageLevel)
	assert.True(t, trail.Session.RedFlagRaised)
	require.NotNil(t, trail.Session.EndedAt)
	assert.Len(t, trail.Transcript, 2)
}

func TestApply_StaleSnapshotDoesNotOverwrite(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	newer := intake.NewSession("sess-3", now)
	newer.Stage = intake.StageIdentification
	newer.UpdatedAt = now.Add(2 * time.Minute)
	require.NoError(t, repo.Apply(ctx, turnEvent("01HZZZZZZZZZZZZZZZZZZZZZZ4", newer, "yes", "name?", now)))

	older := intake.NewSession("sess-3", now)
	older.Stage = intake.StageConsent
	older.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, repo.Apply(ctx, turnEvent("01HZZZZZZZZZZZZZZZZZZZZZZ5", older, "hello", "consent?", now)))

	trail, err := repo.Trail(ctx, "sess-3")
	require.NoError(t, err)
	assert.Equal(t, "identification", trail.Session.Stage)
	assert.Len(t, trail.Transcript, 4)
}

func TestTrail_NotFound(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	_, err := repo.Trail(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApply_RejectsEventWithoutID(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	err := repo.Apply(context.Background(), intake.Event{SessionID: "x"})
	assert.Error(t, err)
}
