// Package registry persists session state blobs on disk, indexed by
// model name and capture time.
//
// Each model gets one directory under the working directory holding a
// registry.json index plus one blob file per saved state. A state saved
// by one session can be located by capture time (within an epsilon, to
// absorb round-off) and loaded into another session of the same model.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/twinkit/internal/twin"
)

const indexFile = "registry.json"

// DefaultEpsilon is the time search half-width used when none is given.
const DefaultEpsilon = 1e-8

// ErrNoSavedState indicates no saved state matched the requested time.
var ErrNoSavedState = errors.New("registry: no saved state at requested time")

// Entry describes one saved state.
type Entry struct {
	ID         string      `json:"id"`
	SessionID  string      `json:"session_id"`
	Time       float64     `json:"time"`
	SavedAt    time.Time   `json:"saved_at"`
	Inputs     twin.Values `json:"inputs,omitempty"`
	Parameters twin.Values `json:"parameters,omitempty"`
	Outputs    twin.Values `json:"outputs,omitempty"`
	BlobFile   string      `json:"blob_file"`
}

// Registry is the saved-state store of one model.
type Registry struct {
	dir string
}

// New opens (creating if needed) the registry for a model under baseDir.
func New(baseDir, modelName string) (*Registry, error) {
	if modelName == "" {
		return nil, errors.New("registry: empty model name")
	}
	dir := filepath.Join(baseDir, modelName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Registry{dir: dir}, nil
}

// Dir returns the registry directory.
func (r *Registry) Dir() string { return r.dir }

// Append stores a blob captured by the given session at time t and
// registers it in the index.
func (r *Registry) Append(sessionID string, t float64, inputs, parameters, outputs twin.Values, blob []byte) (Entry, error) {
	e := Entry{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Time:       t,
		SavedAt:    time.Now().UTC(),
		Inputs:     inputs,
		Parameters: parameters,
		Outputs:    outputs,
	}
	e.BlobFile = fmt.Sprintf("state-%s.bin", e.ID)

	if err := os.WriteFile(filepath.Join(r.dir, e.BlobFile), blob, 0o644); err != nil {
		return Entry{}, err
	}
	entries, err := r.List()
	if err != nil {
		return Entry{}, err
	}
	entries = append(entries, e)
	if err := r.writeIndex(entries); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// List returns every registered entry in append order.
func (r *Registry) List() ([]Entry, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("registry: corrupt index: %w", err)
	}
	return entries, nil
}

// Find returns the first entry whose capture time lies within
// [t-epsilon, t+epsilon]. A non-positive epsilon falls back to
// DefaultEpsilon.
func (r *Registry) Find(t, epsilon float64) (Entry, error) {
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}
	entries, err := r.List()
	if err != nil {
		return Entry{}, err
	}
	for _, e := range entries {
		if math.Abs(e.Time-t) <= epsilon {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: t=%g (epsilon=%g, %d entries)", ErrNoSavedState, t, epsilon, len(entries))
}

// Latest returns the most recently appended entry.
func (r *Registry) Latest() (Entry, error) {
	entries, err := r.List()
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, ErrNoSavedState
	}
	return entries[len(entries)-1], nil
}

// Blob reads the state blob of an entry.
func (r *Registry) Blob(e Entry) ([]byte, error) {
	return os.ReadFile(filepath.Join(r.dir, e.BlobFile))
}

func (r *Registry) writeIndex(entries []Entry) error {
	f, err := os.Create(filepath.Join(r.dir, indexFile))
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}
