// Package probe measures the real network quality of candidate sources by
// fetching a small prefix of one episode's stream.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/streamweave/streamweave/internal/source/types"
)

// Config holds prober configuration.
type Config struct {
	// PoolWidth caps concurrent probes. 0 means half the candidate
	// count, preserving the historical two-batch connection bound.
	PoolWidth int
	// MaxBytes is the segment prefix size used to measure throughput.
	MaxBytes int64
	// Timeout bounds a single candidate's probe end to end.
	Timeout time.Duration
}

// Prober issues lightweight probes against candidate stream URLs.
type Prober struct {
	client    *http.Client
	logger    zerolog.Logger
	poolWidth int
	maxBytes  int64
	timeout   time.Duration
}

// New creates a prober.
func New(cfg Config, logger zerolog.Logger) *Prober {
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 512 * 1024
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Prober{
		client:    &http.Client{},
		logger:    logger.With().Str("component", "probe").Logger(),
		poolWidth: cfg.PoolWidth,
		maxBytes:  maxBytes,
		timeout:   timeout,
	}
}

// ProbeAll probes every candidate and returns one result per candidate in
// input order. A probe that fails is recorded as failed, not discarded, so
// callers can still surface the candidate with its failure status.
func (p *Prober) ProbeAll(ctx context.Context, candidates []types.Candidate) []types.ProbeResult {
	results := make([]types.ProbeResult, len(candidates))

	width := p.poolWidth
	if width <= 0 {
		width = (len(candidates) + 1) / 2
	}
	if width < 1 {
		width = 1
	}

	g := &errgroup.Group{}
	g.SetLimit(width)

	for i, candidate := range candidates {
		g.Go(func() error {
			results[i] = p.Probe(ctx, candidate)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Probe measures one candidate. The probe fetches the second episode's
// stream (or the first, if only one exists): early episodes are more likely
// to be cached by the provider's CDN and skew measurements.
func (p *Prober) Probe(ctx context.Context, candidate types.Candidate) types.ProbeResult {
	result := types.ProbeResult{
		Candidate: candidate,
		Quality:   types.QualityUnknown,
	}

	if len(candidate.Episodes) == 0 {
		result.Failed = true
		return result
	}

	episodeURL := candidate.Episodes[0]
	if len(candidate.Episodes) > 1 {
		episodeURL = candidate.Episodes[1]
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	measured, err := p.measure(probeCtx, episodeURL)
	if err != nil {
		p.logger.Debug().
			Err(err).
			Str("provider", candidate.ProviderName).
			Str("candidate", candidate.Key()).
			Msg("probe failed")
		result.Failed = true
		return result
	}

	measured.Candidate = candidate
	return *measured
}

func (p *Prober) measure(ctx context.Context, episodeURL string) (*types.ProbeResult, error) {
	base, err := url.Parse(episodeURL)
	if err != nil {
		return nil, fmt.Errorf("invalid episode url: %w", err)
	}

	start := time.Now()
	body, err := p.fetch(ctx, episodeURL, 0)
	latency := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("fetch playlist: %w", err)
	}

	pl := parsePlaylist(string(body))

	height := 0
	segmentURL := ""

	if pl.isMaster() {
		height = pl.maxHeight()
		variantURL := resolveReference(base, pl.bestVariant())
		variantBody, err := p.fetch(ctx, variantURL, 0)
		if err != nil {
			return nil, fmt.Errorf("fetch variant playlist: %w", err)
		}
		variantBase, err := url.Parse(variantURL)
		if err != nil {
			return nil, fmt.Errorf("invalid variant url: %w", err)
		}
		if segments := parsePlaylist(string(variantBody)).segments; len(segments) > 0 {
			segmentURL = resolveReference(variantBase, segments[0])
		}
	} else if len(pl.segments) > 0 {
		segmentURL = resolveReference(base, pl.segments[0])
	}

	if segmentURL == "" {
		return nil, fmt.Errorf("no media segments in playlist")
	}

	segmentStart := time.Now()
	segment, err := p.fetch(ctx, segmentURL, p.maxBytes)
	elapsed := time.Since(segmentStart)
	if err != nil {
		return nil, fmt.Errorf("fetch segment prefix: %w", err)
	}

	throughput := 0.0
	if seconds := elapsed.Seconds(); seconds > 0 {
		throughput = float64(len(segment)) / 1024 / seconds
	}

	return &types.ProbeResult{
		Quality:        tierForHeight(height),
		ThroughputKBps: throughput,
		LatencyMs:      latency.Milliseconds(),
	}, nil
}

// fetch retrieves a URL body, bounded to maxBytes when maxBytes > 0.
func (p *Prober) fetch(ctx context.Context, rawURL string, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if maxBytes > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", maxBytes-1))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	reader := io.Reader(resp.Body)
	if maxBytes > 0 {
		reader = io.LimitReader(resp.Body, maxBytes)
	}
	return io.ReadAll(reader)
}
