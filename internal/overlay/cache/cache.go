// Package cache is the durable overlay comment cache. Entries survive
// restarts in sqlite and expire on a configurable TTL.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamweave/streamweave/internal/overlay/types"
)

// Entry is one cached comment set with its resolution provenance.
type Entry struct {
	Title        string
	EpisodeIndex int
	Comments     []types.Comment
	Provenance   types.Provenance
	InsertedAt   time.Time
}

// Stats summarizes cache contents.
type Stats struct {
	Entries       int       `json:"entries"`
	Expired       int       `json:"expired"`
	Comments      int       `json:"comments"`
	OldestEntry   time.Time `json:"oldestEntry,omitempty"`
	NewestEntry   time.Time `json:"newestEntry,omitempty"`
	ExpiryMinutes int       `json:"expiryMinutes"`
}

// Store reads and writes cached overlay entries.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	expiry time.Duration
	now    func() time.Time
}

// New creates a cache store. A zero expiry disables the cache entirely:
// reads always miss and writes are dropped.
func New(db *sql.DB, expiry time.Duration, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "overlay-cache").Logger(),
		expiry: expiry,
		now:    time.Now,
	}
}

// Key builds the cache key for one episode of a title.
func Key(title string, episodeIndex int) string {
	return fmt.Sprintf("%s|%d", title, episodeIndex)
}

// Get returns the cached entry for a key, or nil on a miss. Expired entries
// and storage errors both read as misses; storage errors are logged.
func (s *Store) Get(ctx context.Context, title string, episodeIndex int) *Entry {
	if s.expiry <= 0 {
		return nil
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT title, episode_index, comments, inserted_at,
		       anime_id, episode_id, anime_title, episode_title,
		       search_keyword, comment_count
		FROM overlay_cache
		WHERE cache_key = ?`,
		Key(title, episodeIndex))

	var entry Entry
	var commentsJSON string
	var insertedAt int64
	err := row.Scan(
		&entry.Title, &entry.EpisodeIndex, &commentsJSON, &insertedAt,
		&entry.Provenance.AnimeID, &entry.Provenance.EpisodeID,
		&entry.Provenance.AnimeTitle, &entry.Provenance.EpisodeTitle,
		&entry.Provenance.SearchKeyword, &entry.Provenance.CommentCount,
	)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Error().Err(err).Str("title", title).Msg("cache read failed")
		}
		return nil
	}

	entry.InsertedAt = time.Unix(insertedAt, 0)
	if s.now().Sub(entry.InsertedAt) > s.expiry {
		return nil
	}

	if err := json.Unmarshal([]byte(commentsJSON), &entry.Comments); err != nil {
		s.logger.Error().Err(err).Str("title", title).Msg("cache entry is corrupt, dropping")
		s.deleteKey(ctx, Key(title, episodeIndex))
		return nil
	}
	return &entry
}

// Put stores an entry, replacing any existing one for the same key. Writes
// are dropped when the cache is disabled. Storage errors are logged and
// swallowed: a failed cache write must never fail the resolution.
func (s *Store) Put(ctx context.Context, entry Entry) {
	if s.expiry <= 0 {
		return
	}

	commentsJSON, err := json.Marshal(entry.Comments)
	if err != nil {
		s.logger.Error().Err(err).Str("title", entry.Title).Msg("cache encode failed")
		return
	}

	insertedAt := entry.InsertedAt
	if insertedAt.IsZero() {
		insertedAt = s.now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO overlay_cache (
			cache_key, title, episode_index, comments, inserted_at,
			anime_id, episode_id, anime_title, episode_title,
			search_keyword, comment_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			comments = excluded.comments,
			inserted_at = excluded.inserted_at,
			anime_id = excluded.anime_id,
			episode_id = excluded.episode_id,
			anime_title = excluded.anime_title,
			episode_title = excluded.episode_title,
			search_keyword = excluded.search_keyword,
			comment_count = excluded.comment_count`,
		Key(entry.Title, entry.EpisodeIndex), entry.Title, entry.EpisodeIndex,
		string(commentsJSON), insertedAt.Unix(),
		entry.Provenance.AnimeID, entry.Provenance.EpisodeID,
		entry.Provenance.AnimeTitle, entry.Provenance.EpisodeTitle,
		entry.Provenance.SearchKeyword, entry.Provenance.CommentCount,
	)
	if err != nil {
		s.logger.Error().Err(err).Str("title", entry.Title).Msg("cache write failed")
	}
}

// Clear removes the cached entry for one episode of a title.
func (s *Store) Clear(ctx context.Context, title string, episodeIndex int) error {
	return s.deleteKey(ctx, Key(title, episodeIndex))
}

// ClearTitle removes every cached entry for a title.
func (s *Store) ClearTitle(ctx context.Context, title string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM overlay_cache WHERE title = ?`, title)
	if err != nil {
		return fmt.Errorf("clear cached title: %w", err)
	}
	return nil
}

// ClearAll empties the cache.
func (s *Store) ClearAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM overlay_cache`)
	if err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Sweep deletes expired entries and returns how many were removed. With the
// cache disabled there is nothing to age out, so sweeping is a no-op.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	if s.expiry <= 0 {
		return 0, nil
	}

	cutoff := s.now().Add(-s.expiry).Unix()
	result, err := s.db.ExecContext(ctx, `DELETE FROM overlay_cache WHERE inserted_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep cache: %w", err)
	}
	removed, _ := result.RowsAffected()
	return removed, nil
}

// Stats reports cache contents for the settings surface. A disabled cache
// reports empty stats regardless of rows left on disk from earlier runs.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	if s.expiry <= 0 {
		return Stats{}, nil
	}
	stats := Stats{ExpiryMinutes: int(s.expiry / time.Minute)}
	cutoff := s.now().Add(-s.expiry).Unix()

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN inserted_at < ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(comment_count), 0),
		       COALESCE(MIN(inserted_at), 0), COALESCE(MAX(inserted_at), 0)
		FROM overlay_cache`, cutoff)

	var oldest, newest int64
	if err := row.Scan(&stats.Entries, &stats.Expired, &stats.Comments, &oldest, &newest); err != nil {
		return Stats{}, fmt.Errorf("cache stats: %w", err)
	}
	if oldest > 0 {
		stats.OldestEntry = time.Unix(oldest, 0)
	}
	if newest > 0 {
		stats.NewestEntry = time.Unix(newest, 0)
	}
	return stats, nil
}

func (s *Store) deleteKey(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM overlay_cache WHERE cache_key = ?`, key)
	if err != nil {
		return fmt.Errorf("clear cached entry: %w", err)
	}
	return nil
}
