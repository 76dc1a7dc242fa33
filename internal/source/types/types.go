// Package types contains shared data structures for source resolution.
package types

// MediaType classifies a candidate as a movie or an episodic series.
type MediaType string

const (
	MediaTypeUnknown MediaType = ""
	MediaTypeMovie   MediaType = "movie"
	MediaTypeSeries  MediaType = "tv"
)

// QualityTier is a coarse stream resolution bucket.
type QualityTier string

const (
	QualityUnknown QualityTier = "unknown"
	QualitySD      QualityTier = "SD"
	Quality480p    QualityTier = "480p"
	Quality720p    QualityTier = "720p"
	Quality1080p   QualityTier = "1080p"
	Quality2K      QualityTier = "2K"
	Quality4K      QualityTier = "4K"
)

// Candidate is one provider's claimed copy of a title. Immutable once
// fetched; identity is (ProviderID, ExternalID).
type Candidate struct {
	ProviderID   string    `json:"providerId"`
	ExternalID   string    `json:"externalId"`
	Title        string    `json:"title"`
	Year         string    `json:"year"`
	MediaType    MediaType `json:"mediaType"`
	Episodes     []string  `json:"episodes"`
	ProviderName string    `json:"providerName"`
}

// Key returns the candidate identity used for probe-result bookkeeping.
func (c Candidate) Key() string {
	return c.ProviderID + "-" + c.ExternalID
}

// InferredMediaType returns the declared media type, falling back to the
// episode-count heuristic: more than one playable URL means a series.
func (c Candidate) InferredMediaType() MediaType {
	if c.MediaType != MediaTypeUnknown {
		return c.MediaType
	}
	if len(c.Episodes) > 1 {
		return MediaTypeSeries
	}
	return MediaTypeMovie
}

// ProbeResult holds the measured network quality of one candidate.
// Ephemeral: recomputed per resolution attempt, never persisted.
type ProbeResult struct {
	Candidate      Candidate   `json:"candidate"`
	Quality        QualityTier `json:"quality"`
	ThroughputKBps float64     `json:"throughputKBps"`
	LatencyMs      int64       `json:"latencyMs"`
	Failed         bool        `json:"failed"`
}

// ScoredCandidate is a probe result with its derived selection score.
type ScoredCandidate struct {
	ProbeResult
	Score float64 `json:"score"`
}
