// Package session remembers playback choices for the lifetime of the
// process: chosen source indexes, manually pinned overlay episodes, custom
// search keywords, confirmed show ids, and picked overlay search positions.
// Nothing here survives a restart.
package session

import (
	"fmt"
	"strings"
	"sync"
)

// Key namespaces. Every entry is namespaced so the same title can carry
// independent memories for each concern.
const (
	prefixIndex   = "index_"
	prefixManual  = "manual_"
	prefixKeyword = "keyword_"
	prefixAnime   = "anime_"
	prefixSearch  = "search_"
)

// Memory is a concurrency-safe in-process store of playback choices.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]string
}

// New creates an empty session memory.
func New() *Memory {
	return &Memory{entries: make(map[string]string)}
}

// SaveSourceIndex remembers which source the viewer picked for a title.
func (m *Memory) SaveSourceIndex(title string, index int) {
	m.set(prefixIndex+title, fmt.Sprintf("%d", index))
}

// SourceIndex returns the remembered source index for a title.
func (m *Memory) SourceIndex(title string) (int, bool) {
	value, ok := m.get(prefixIndex + title)
	if !ok {
		return 0, false
	}
	var index int
	if _, err := fmt.Sscanf(value, "%d", &index); err != nil {
		return 0, false
	}
	return index, true
}

// SaveSearchIndex remembers which position of an overlay search result list
// the viewer picked for a title. Later searches for the same title auto-accept
// that position instead of re-asking.
func (m *Memory) SaveSearchIndex(title string, index int) {
	m.set(prefixSearch+title, fmt.Sprintf("%d", index))
}

// SearchIndex returns the remembered overlay search position for a title.
func (m *Memory) SearchIndex(title string) (int, bool) {
	value, ok := m.get(prefixSearch + title)
	if !ok {
		return 0, false
	}
	var index int
	if _, err := fmt.Sscanf(value, "%d", &index); err != nil {
		return 0, false
	}
	return index, true
}

// SaveManualEpisode pins an upstream episode id to one episode of a title.
func (m *Memory) SaveManualEpisode(title string, episodeIndex int, episodeID int64) {
	m.set(manualKey(title, episodeIndex), fmt.Sprintf("%d", episodeID))
}

// ManualEpisode returns the pinned upstream episode id, if any.
func (m *Memory) ManualEpisode(title string, episodeIndex int) (int64, bool) {
	value, ok := m.get(manualKey(title, episodeIndex))
	if !ok {
		return 0, false
	}
	var id int64
	if _, err := fmt.Sscanf(value, "%d", &id); err != nil {
		return 0, false
	}
	return id, true
}

// SaveKeyword remembers the search keyword that worked for a title.
func (m *Memory) SaveKeyword(title, keyword string) {
	m.set(prefixKeyword+title, keyword)
}

// Keyword returns the remembered search keyword for a title.
func (m *Memory) Keyword(title string) (string, bool) {
	return m.get(prefixKeyword + title)
}

// SaveAnimeID remembers a confirmed upstream show id for a title.
func (m *Memory) SaveAnimeID(title string, animeID int64) {
	m.set(prefixAnime+title, fmt.Sprintf("%d", animeID))
}

// AnimeID returns the confirmed upstream show id for a title.
func (m *Memory) AnimeID(title string) (int64, bool) {
	value, ok := m.get(prefixAnime + title)
	if !ok {
		return 0, false
	}
	var id int64
	if _, err := fmt.Sscanf(value, "%d", &id); err != nil {
		return 0, false
	}
	return id, true
}

// ClearTitle forgets everything remembered for one title, including every
// per-episode manual pin.
func (m *Memory) ClearTitle(title string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, prefixIndex+title)
	delete(m.entries, prefixKeyword+title)
	delete(m.entries, prefixAnime+title)
	delete(m.entries, prefixSearch+title)

	manualPrefix := prefixManual + title + "_"
	for key := range m.entries {
		if strings.HasPrefix(key, manualPrefix) {
			delete(m.entries, key)
		}
	}
}

// ClearAll forgets every remembered choice.
func (m *Memory) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]string)
}

// Len returns the number of remembered entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func manualKey(title string, episodeIndex int) string {
	return fmt.Sprintf("%s%s_%d", prefixManual, title, episodeIndex)
}

func (m *Memory) set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
}

func (m *Memory) get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.entries[key]
	return value, ok
}
