package state

import (
	"context"
	"sort"
	"strings"
	"time"
)

const noSlice = "none"

// Record captures the last successful deployment of one service slice.
type Record struct {
	DeploymentID string    `json:"deployment_id"`
	ArchiveDir   string    `json:"archive_dir"`
	// AppspecPath is set when the appspec was read from outside ArchiveDir.
	AppspecPath  string    `json:"appspec_path,omitempty"`
	Checks       []string  `json:"checks,omitempty"`
	DeployedAt   time.Time `json:"deployed_at"`
}

// State stores deployment records keyed by service and slice.
type State struct {
	Services map[string]Record `json:"services"`
}

// Key identifies a service slice. An empty slice and "none" share a key.
func Key(serviceID, slice string) string {
	if slice == "" || strings.EqualFold(slice, noSlice) {
		slice = noSlice
	}
	return serviceID + "/" + slice
}

// Previous returns the recorded deployment for the service slice.
func (s State) Previous(serviceID, slice string) (Record, bool) {
	record, ok := s.Services[Key(serviceID, slice)]
	return record, ok
}

// Put records a deployment for the service slice, replacing any earlier one.
func (s *State) Put(serviceID, slice string, record Record) {
	if s.Services == nil {
		s.Services = map[string]Record{}
	}
	s.Services[Key(serviceID, slice)] = record
}

// Prune drops records whose archive directory no longer exists and returns
// their keys in sorted order. Without its archive a record cannot be used to
// find the checks to deregister.
func (s *State) Prune(archiveExists func(dir string) bool) []string {
	var pruned []string
	for key, record := range s.Services {
		if record.ArchiveDir != "" && archiveExists(record.ArchiveDir) {
			continue
		}
		delete(s.Services, key)
		pruned = append(pruned, key)
	}
	sort.Strings(pruned)
	return pruned
}

// Store defines the interface for persisting state.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
	// Update loads the state, applies fn and saves the result while holding
	// the store's lock. Nothing is saved when fn returns an error.
	Update(ctx context.Context, fn func(*State) error) error
}
