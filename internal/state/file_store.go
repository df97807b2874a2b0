package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// FileStore keeps the deployment record of every service slice on this
// instance in one JSON file. Hooks for different services may run
// concurrently in one process, so reads and writes are serialized.
type FileStore struct {
	path   string
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewFileStore returns a JSON-backed state store.
func NewFileStore(path string, logger zerolog.Logger) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger.With().Str("state_file", path).Logger(),
	}
}

// Load reads state from disk. Missing or corrupt files return an empty state
// with a warning, so every service slice is treated as a first deployment.
func (s *FileStore) Load(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Save writes state to disk atomically.
func (s *FileStore) Save(ctx context.Context, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, state)
}

// Update implements Store.
func (s *FileStore) Update(ctx context.Context, fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load(ctx)
	if err != nil {
		return err
	}
	if err := fn(&state); err != nil {
		return err
	}
	return s.save(ctx, state)
}

func (s *FileStore) load(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().Msg("state file missing, no previous deployments known")
			return State{Services: map[string]Record{}}, nil
		}
		return State{}, fmt.Errorf("read state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn().Err(err).Msg("state file corrupt, ignoring previous deployments")
		return State{Services: map[string]Record{}}, nil
	}
	if state.Services == nil {
		state.Services = map[string]Record{}
	}
	return state, nil
}

func (s *FileStore) save(ctx context.Context, state State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state.Services == nil {
		state.Services = map[string]Record{}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tempFile, err := os.CreateTemp(dir, ".sensu-hooks-state-*.json")
	if err != nil {
		return fmt.Errorf("create state file: %w", err)
	}
	tempName := tempFile.Name()

	encoder := json.NewEncoder(tempFile)
	encoder.SetIndent("", "  ")
	err = encoder.Encode(state)
	if err == nil {
		err = tempFile.Sync()
	}
	if closeErr := tempFile.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tempName, s.path)
	}
	if err != nil {
		_ = os.Remove(tempName)
		return fmt.Errorf("write state: %w", err)
	}

	s.logger.Debug().Int("services", len(state.Services)).Msg("saved deployment state")
	return nil
}
