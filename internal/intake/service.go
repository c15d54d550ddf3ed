package intake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/voice-intake/internal/ai"
	"github.com/suPer8Hu/voice-intake/internal/common"
)

const (
	defaultContextWindow  = 6
	defaultCallTimeout    = 60 * time.Second
	publishTimeout        = 5 * time.Second
	endedAssistantMessage = "This intake session has ended. If your symptoms get worse, please seek emergency care right away."
	generationMaxTokens   = 300
	generationTemperature = 0.7
)

type Extractor interface {
	Extract(ctx context.Context, transcript string) (ai.Extraction, error)
}

type Config struct {
	// ContextWindow bounds how many recent history entries go to the generator.
	ContextWindow   int
	SessionTTL      time.Duration
	ArchiveTTL      time.Duration
	ExtractTimeout  time.Duration
	GenerateTimeout time.Duration
	Events          EventPublisher
	Now             func() time.Time
}

type Service struct {
	store     Store
	generator ai.Provider
	extractor Extractor
	locks     *Locker
	cfg       Config
}

func NewService(store Store, generator ai.Provider, extractor Extractor, cfg Config) *Service {
	if cfg.ContextWindow <= 0 || cfg.ContextWindow > 100 {
		cfg.ContextWindow = defaultContextWindow
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.ArchiveTTL <= 0 {
		cfg.ArchiveTTL = DefaultArchiveTTL
	}
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = defaultCallTimeout
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = defaultCallTimeout
	}
	if cfg.Events == nil {
		cfg.Events = nopPublisher{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:     store,
		generator: generator,
		extractor: extractor,
		locks:     NewLocker(),
		cfg:       cfg,
	}
}

type TurnResult struct {
	AssistantMessage string      `json:"assistant_message"`
	Stage            Stage       `json:"state"`
	TriageLevel      TriageLevel `json:"triage_level,omitempty"`
	MedicalData      MedicalData `json:"medical_data"`
	ShouldEnd        bool        `json:"should_end"`
}

func (s *Service) StartSession(ctx context.Context, patientID string, metadata map[string]string) (*Session, error) {
	sess := NewSession(NewSessionID(), s.cfg.Now())
	sess.PatientID = strings.TrimSpace(patientID)
	if len(metadata) > 0 {
		sess.Metadata = metadata
	}
	if err := s.store.Put(ctx, sess, s.cfg.SessionTTL); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	log.Info().Str("session_id", sess.ID).Msg("Session started")
	return sess, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	return s.store.Get(ctx, sessionID)
}

// ProcessTurn runs one patient message through extraction, merge, transition, generation
// and persistence. Turns for one session id are serialized. Nothing is written unless
// generation succeeds, so a failed turn can simply be resent.
func (s *Service) ProcessTurn(ctx context.Context, sessionID, message string) (*TurnResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	unlock, err := s.locks.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.Ended() {
		return endedResult(sess), nil
	}

	now := s.cfg.Now()
	patient := Turn{Role: RolePatient, Text: message, Timestamp: now}
	sess.History = append(sess.History, patient)

	exCtx, cancel := context.WithTimeout(ctx, s.cfg.ExtractTimeout)
	extraction, err := s.extractor.Extract(exCtx, sess.PatientTranscript())
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTurnFailed, err)
	}
	sess.MedicalData = Merge(sess.MedicalData, extraction)
	if sess.MedicalData.HasRedFlag() {
		sess.RedFlagRaised = true
	}

	prev := sess.Stage
	sess.Stage = Advance(prev, message, sess.MedicalData, sess.RedFlagRaised)

	system, err := systemPrompt(sess.Stage, sess.MedicalData)
	if err != nil {
		return nil, err
	}
	genCtx, cancel := context.WithTimeout(ctx, s.cfg.GenerateTimeout)
	reply, err := s.generator.Chat(genCtx,
		ai.WithSystem(system, toMessages(sess.Window(s.cfg.ContextWindow))),
		ai.Options{MaxTokens: generationMaxTokens, Temperature: generationTemperature},
	)
	cancel()
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Str("stage", sess.Stage.String()).Msg("Generation failed")
		return nil, fmt.Errorf("%w: %w", ErrTurnFailed, err)
	}

	assistant := Turn{Role: RoleAssistant, Text: strings.TrimSpace(reply), Timestamp: s.cfg.Now()}
	sess.History = append(sess.History, assistant)
	applyTriage(sess)
	sess.TurnCount++
	sess.UpdatedAt = assistant.Timestamp

	if sess.Stage.Terminal() {
		sess.finalize(assistant.Timestamp)
		if err := s.archive(ctx, sess); err != nil {
			return nil, err
		}
	} else if err := s.store.Put(ctx, sess, s.cfg.SessionTTL); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	if prev != sess.Stage {
		log.Info().
			Str("session_id", sessionID).
			Str("from", prev.String()).
			Str("to", sess.Stage.String()).
			Bool("red_flag", sess.RedFlagRaised).
			Msg("Stage advanced")
	}

	s.publish(ctx, Event{
		Kind:       EventTurn,
		SessionID:  sess.ID,
		Session:    *sess,
		Patient:    &patient,
		Assistant:  &assistant,
		Extraction: &extraction,
	})
	if sess.Ended() {
		s.publish(ctx, Event{Kind: EventSessionEnded, SessionID: sess.ID, Session: *sess})
	}

	return resultOf(sess, assistant.Text), nil
}

// EndSession finalizes the session and moves it to the archive slot.
func (s *Service) EndSession(ctx context.Context, sessionID string) (*Session, error) {
	unlock, err := s.locks.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.Status == StatusEnded {
		return sess, nil
	}
	sess.finalize(s.cfg.Now())
	if err := s.archive(ctx, sess); err != nil {
		return nil, err
	}
	log.Info().Str("session_id", sessionID).Int("turns", sess.TurnCount).Msg("Session ended")
	s.publish(ctx, Event{Kind: EventSessionEnded, SessionID: sess.ID, Session: *sess})
	return sess, nil
}

// ExtractNow re-runs extraction over the patient transcript without merging it.
func (s *Service) ExtractNow(ctx context.Context, sessionID string) (ai.Extraction, int, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return ai.Extraction{}, 0, fmt.Errorf("load session: %w", err)
	}
	transcript := sess.PatientTranscript()
	exCtx, cancel := context.WithTimeout(ctx, s.cfg.ExtractTimeout)
	defer cancel()
	ex, err := s.extractor.Extract(exCtx, transcript)
	if err != nil {
		return ai.Extraction{}, 0, err
	}
	return ex, len(transcript), nil
}

func (s *Service) archive(ctx context.Context, sess *Session) error {
	if err := s.store.Archive(ctx, sess, s.cfg.ArchiveTTL); err != nil {
		return fmt.Errorf("archive session: %w", err)
	}
	if err := s.store.Delete(ctx, sess.ID); err != nil {
		return fmt.Errorf("drop live session: %w", err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, ev Event) {
	id, err := common.NewULID()
	if err != nil {
		log.Error().Err(err).Msg("Event id generation failed")
		return
	}
	ev.ID = id
	ev.OccurredAt = s.cfg.Now()

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.cfg.Events.Publish(pctx, ev); err != nil {
		log.Error().Err(err).
			Str("session_id", ev.SessionID).
			Str("event_id", ev.ID).
			Str("kind", string(ev.Kind)).
			Msg("Audit event publish failed")
	}
}

func systemPrompt(stage Stage, data MedicalData) (string, error) {
	snapshot, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode medical data: %w", err)
	}
	return stage.Prompt() + "\n\nPatient information gathered so far: " + string(snapshot), nil
}

func toMessages(turns []Turn) []ai.Message {
	out := make([]ai.Message, 0, len(turns))
	for _, t := range turns {
		role := "assistant"
		if t.Role == RolePatient {
			role = "user"
		}
		out = append(out, ai.Message{Role: role, Content: t.Text})
	}
	return out
}

func resultOf(sess *Session, reply string) *TurnResult {
	return &TurnResult{
		AssistantMessage: reply,
		Stage:            sess.Stage,
		TriageLevel:      sess.TriageLevel,
		MedicalData:      sess.MedicalData,
		ShouldEnd:        sess.Stage.Closing(),
	}
}

func endedResult(sess *Session) *TurnResult {
	res := resultOf(sess, endedAssistantMessage)
	res.Stage = StageEnded
	res.ShouldEnd = true
	return res
}
