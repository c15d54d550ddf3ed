package speech

// ScoreFunc maps a recognizer's average segment log-probability to a 0..1 confidence.
type ScoreFunc func(avgLogprob float64) float64

// ScoreConfidence is a linear shift of the average log-probability, clamped to [0,1].
// It is uncalibrated; swap WhisperClient.Score for a better model when one exists.
func ScoreConfidence(avgLogprob float64) float64 {
	return clamp01(avgLogprob + 1)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
