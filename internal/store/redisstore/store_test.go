package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/voice-intake/internal/intake"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewWithClient(rdb), mr
}

func TestGet_UnknownIDIsFreshSession(t *testing.T) {
	s, _ := newTestStore(t)
	sess, err := s.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, "nobody", sess.ID)
	assert.Equal(t, intake.StageGreeting, sess.Stage)
	assert.Equal(t, intake.StatusActive, sess.Status)
	assert.Empty(t, sess.History)
}

func TestPutGet_RoundTripAndTTL(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	sess := intake.NewSession("abc", time.Now().UTC())
	sess.Stage = intake.StageSymptomProbing
	sess.RedFlagRaised = true
	sev := 7
	sess.MedicalData.Severity = &sev
	sess.MedicalData.RedFlags["chest_pain"] = true
	sess.History = append(sess.History, intake.Turn{Role: intake.RolePatient, Text: "my chest hurts", Timestamp: time.Now().UTC()})

	require.NoError(t, s.Put(ctx, sess, time.Hour))
	assert.True(t, mr.Exists("session:abc"))
	assert.Equal(t, time.Hour, mr.TTL("session:abc"))

	got, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, intake.StageSymptomProbing, got.Stage)
	assert.True(t, got.RedFlagRaised)
	assert.Equal(t, 7, *got.MedicalData.Severity)
	assert.True(t, got.MedicalData.RedFlags["chest_pain"])
	require.Len(t, got.History, 1)
	assert.Equal(t, "my chest hurts", got.History[0].Text)

	mr.FastForward(time.Hour + time.Second)
	got, err = s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, intake.StageGreeting, got.Stage)
}

func TestArchive_SurvivesLiveDelete(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	sess := intake.NewSession("fin", time.Now().UTC())
	sess.Stage = intake.StageEnded
	sess.Status = intake.StatusEnded
	sess.TriageLevel = intake.TriageAmber
	require.NoError(t, s.Put(ctx, sess, time.Hour))
	require.NoError(t, s.Archive(ctx, sess, 24*time.Hour))
	require.NoError(t, s.Delete(ctx, "fin"))

	assert.False(t, mr.Exists("session:fin"))
	assert.True(t, mr.Exists("session:fin:final"))
	assert.Equal(t, 24*time.Hour, mr.TTL("session:fin:final"))

	got, err := s.Get(ctx, "fin")
	require.NoError(t, err)
	assert.Equal(t, intake.StageEnded, got.Stage)
	assert.Equal(t, intake.TriageAmber, got.TriageLevel)
}

func TestGet_CorruptValue(t *testing.T) {
	s, mr := newTestStore(t)
	require.NoError(t, mr.Set("session:bad", "{not json"))
	_, err := s.Get(context.Background(), "bad")
	assert.Error(t, err)
}

func TestGet_RedisDown(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()
	_, err := s.Get(context.Background(), "x")
	assert.Error(t, err)
}
