package provider

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Repository loads provider definitions from a directory of YAML files and
// hands out ready clients.
type Repository struct {
	logger  zerolog.Logger
	clients []Client
}

// NewRepository reads every .yml/.yaml file in dir. Invalid definitions are
// logged and skipped so one broken file cannot take down the whole set.
func NewRepository(dir string, searchTimeout time.Duration, logger zerolog.Logger) (*Repository, error) {
	repo := &Repository{
		logger: logger.With().Str("component", "provider").Logger(),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			repo.logger.Warn().Str("dir", dir).Msg("provider directory does not exist, no providers loaded")
			return repo, nil
		}
		return nil, fmt.Errorf("read provider directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yml" || ext == ".yaml" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	seen := make(map[string]bool)
	for _, name := range names {
		path := filepath.Join(dir, name)
		def, err := loadDefinition(path)
		if err != nil {
			repo.logger.Error().Err(err).Str("file", name).Msg("skipping invalid provider definition")
			continue
		}
		if def.Disabled {
			repo.logger.Debug().Str("provider", def.ID).Msg("provider disabled")
			continue
		}
		if seen[def.ID] {
			repo.logger.Warn().Str("provider", def.ID).Str("file", name).Msg("duplicate provider id, skipping")
			continue
		}
		seen[def.ID] = true

		timeout := searchTimeout
		if def.TimeoutSeconds > 0 {
			timeout = time.Duration(def.TimeoutSeconds) * time.Second
		}
		repo.clients = append(repo.clients, NewClient(def, &http.Client{Timeout: timeout}))
	}

	repo.logger.Info().Int("count", len(repo.clients)).Msg("loaded providers")
	return repo, nil
}

func loadDefinition(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, err
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// Clients returns all enabled provider clients in definition-file order.
func (r *Repository) Clients() []Client {
	return r.clients
}

// Definitions returns the definitions of all enabled providers.
func (r *Repository) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.clients))
	for _, client := range r.clients {
		defs = append(defs, client.Definition())
	}
	return defs
}
