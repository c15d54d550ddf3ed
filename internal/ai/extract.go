package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// ErrExtractionParse is logged, never returned: an unparseable reply degrades to an empty
// extraction.
var ErrExtractionParse = errors.New("extraction reply is not a medical data object")

const (
	ExtractionMaxTokens   = 500
	ExtractionTemperature = 0.1
)

// Extraction is one structured inference over a patient transcript. Nil means "not stated".
type Extraction struct {
	ChiefComplaint *string         `json:"chief_complaint"`
	BodyPart       *string         `json:"body_part"`
	Severity       *int            `json:"severity"`
	OnsetDays      *int            `json:"onset_days"`
	RedFlags       map[string]bool `json:"red_flags"`
	Symptoms       []string        `json:"symptoms"`
	TriageLevel    *string         `json:"triage_level"`
	Confidence     float64         `json:"confidence_score"`
}

const extractionPrompt = `You are a medical NLP system. Extract ONLY factual medical information from the transcript.

Return a JSON object with these fields (use null if not mentioned):
{
  "chief_complaint": "main symptom described",
  "body_part": "affected body part",
  "severity": 1-10 number or null,
  "onset_days": number of days since symptom started or null,
  "red_flags": {
    "chest_pain": true/false,
    "difficulty_breathing": true/false,
    "numbness_weakness": true/false,
    "high_fever": true/false,
    "loss_of_consciousness": true/false,
    "severe_headache": true/false
  },
  "symptoms": ["list", "of", "symptoms"],
  "triage_level": "GREEN" or "AMBER" or "RED",
  "confidence_score": 0.0-1.0
}

IMPORTANT: Do not hallucinate. Only extract what was explicitly stated.`

type Extractor struct {
	provider Provider
}

func NewExtractor(p Provider) *Extractor {
	return &Extractor{provider: p}
}

// Extract runs the low-temperature JSON prompt over transcript. Only collaborator failures
// are returned; a malformed reply yields an empty Extraction.
func (e *Extractor) Extract(ctx context.Context, transcript string) (Extraction, error) {
	reply, err := e.provider.Chat(ctx, []Message{
		{Role: "system", Content: extractionPrompt},
		{Role: "user", Content: "Transcript:\n" + transcript},
	}, Options{MaxTokens: ExtractionMaxTokens, Temperature: ExtractionTemperature})
	if err != nil {
		return Extraction{}, fmt.Errorf("extract: %w", err)
	}

	out, err := ParseExtraction(reply)
	if err != nil {
		log.Warn().Err(err).Int("replyLen", len(reply)).Msg("Extraction degraded to empty record")
		return Extraction{}, nil
	}
	return out, nil
}

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// ParseExtraction pulls the outermost {...} block from a model reply.
func ParseExtraction(reply string) (Extraction, error) {
	block := jsonObject.FindString(reply)
	if block == "" {
		return Extraction{}, ErrExtractionParse
	}

	var raw struct {
		ChiefComplaint *string         `json:"chief_complaint"`
		BodyPart       *string         `json:"body_part"`
		Severity       flexNumber      `json:"severity"`
		OnsetDays      flexNumber      `json:"onset_days"`
		RedFlags       map[string]bool `json:"red_flags"`
		Symptoms       []string        `json:"symptoms"`
		TriageLevel    *string         `json:"triage_level"`
		Confidence     flexNumber      `json:"confidence_score"`
	}
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return Extraction{}, fmt.Errorf("%w: %v", ErrExtractionParse, err)
	}

	out := Extraction{
		ChiefComplaint: nonBlank(raw.ChiefComplaint),
		BodyPart:       nonBlank(raw.BodyPart),
		Severity:       raw.Severity.intPtr(),
		OnsetDays:      raw.OnsetDays.intPtr(),
		RedFlags:       raw.RedFlags,
		Symptoms:       raw.Symptoms,
		TriageLevel:    nonBlank(raw.TriageLevel),
	}
	if raw.Confidence.set {
		out.Confidence = math.Min(1, math.Max(0, raw.Confidence.v))
	}
	return out, nil
}

// flexNumber accepts 7, 7.0, "7" and null.
type flexNumber struct {
	v   float64
	set bool
}

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// models sometimes answer "unknown"; treat as not stated
		return nil
	}
	f.v, f.set = v, true
	return nil
}

func (f flexNumber) intPtr() *int {
	if !f.set {
		return nil
	}
	n := int(math.Round(f.v))
	return &n
}

func nonBlank(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" || strings.EqualFold(t, "null") {
		return nil
	}
	return &t
}
