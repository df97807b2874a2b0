package deployment

import (
	"path/filepath"

	"github.com/rs/zerolog"
)

// AppspecFilename is the manifest name expected at the root of an unpacked archive.
const AppspecFilename = "appspec.yml"

// Service identifies the deployed service and its deployment slice.
type Service struct {
	ID    string
	Slice string
}

// SensuSettings locates Sensu check definitions and plugins on the host.
type SensuSettings struct {
	CheckPath   string
	SearchPaths []string
}

// Deployment is the context shared by all stages of one deployment run.
type Deployment struct {
	ID                string
	ArchiveDir        string
	AppspecPath       string
	LastID            string
	LastArchiveDir    string
	LastAppspecPath   string
	Service           Service
	InstanceTags      map[string]string
	ReservedTagPrefix string
	Sensu             SensuSettings
	Logger            zerolog.Logger
}

// HasPrevious reports whether a previous deployment of the service is known.
func (d *Deployment) HasPrevious() bool {
	return d != nil && d.LastID != ""
}

// ManifestPath returns the appspec path for the current archive.
func (d *Deployment) ManifestPath() string {
	if d.AppspecPath != "" {
		return d.AppspecPath
	}
	return filepath.Join(d.ArchiveDir, AppspecFilename)
}

// PreviousManifestPath returns the appspec the previous deployment was
// registered from, defaulting to the one inside the previous archive.
func (d *Deployment) PreviousManifestPath() string {
	if d.LastAppspecPath != "" {
		return d.LastAppspecPath
	}
	if d.LastArchiveDir == "" {
		return ""
	}
	return filepath.Join(d.LastArchiveDir, AppspecFilename)
}
