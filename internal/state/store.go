// Package state persists harvest progress so interrupted runs can resume.
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// DefaultFileName is the conventional location of the progress record.
const DefaultFileName = "last_known_state.json"

// State is the durable progress record written after every emitted row.
type State struct {
	// CurrentCursor is the end cursor of the most recent org page processed.
	// Empty before the first page and after the last one.
	CurrentCursor string `json:"current_cursor"`
	// LastSuccessfulCursor is the cursor at which the last row was emitted.
	LastSuccessfulCursor  string    `json:"last_successful_cursor"`
	LastProcessedRepo     string    `json:"last_processed_repo"`
	LastUpdated           time.Time `json:"last_updated"`
	CompletedSuccessfully bool      `json:"completed_successfully"`
	ProcessedRepos        []string  `json:"processed_repos"`
	OutputFileName        string    `json:"output_file_name"`

	processedSet map[string]struct{}
}

// Contains reports whether a row for the named repository was already emitted.
func (s *State) Contains(repoName string) bool {
	_, ok := s.processedSet[repoName]
	return ok
}

// append records an emitted repository, preserving order and uniqueness.
func (s *State) append(repoName string) {
	if s.Contains(repoName) {
		return
	}
	if s.processedSet == nil {
		s.processedSet = make(map[string]struct{})
	}
	s.ProcessedRepos = append(s.ProcessedRepos, repoName)
	s.processedSet[repoName] = struct{}{}
	s.LastProcessedRepo = repoName
}

func (s *State) rebuildSet() {
	s.processedSet = make(map[string]struct{}, len(s.ProcessedRepos))
	for _, name := range s.ProcessedRepos {
		s.processedSet[name] = struct{}{}
	}
}

// Mutation describes an update to the progress record. Nil fields are left
// untouched.
type Mutation struct {
	RepoName             *string
	NewCursor            *string
	LastSuccessfulCursor *string
}

// Store reads and writes the progress record at a fixed path.
type Store struct {
	path string
	now  func() time.Time
}

// NewStore creates a store. An empty path selects DefaultFileName.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultFileName
	}
	return &Store{path: path, now: time.Now}
}

// Load reads the progress record. It returns the state to run with and
// whether the run is a resume of previous progress.
//
// A missing or malformed file yields a fresh state. A record marked completed
// is returned as-is with resume=false so the caller can treat the run as a
// no-op. Resume is only granted when the caller requested it.
func (st *Store) Load(resumeRequested bool) (*State, bool) {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("failed to read state file, starting fresh", "path", st.path, "error", err)
		}
		return fresh(), false
	}

	loaded, err := decode(data)
	if err != nil {
		slog.Error("state file is malformed, starting fresh", "path", st.path, "error", err)
		return fresh(), false
	}

	if loaded.CompletedSuccessfully {
		slog.Info("previous run completed successfully",
			"last_processed_repo", loaded.LastProcessedRepo,
			"processed_repos", len(loaded.ProcessedRepos))
		return loaded, false
	}

	if !resumeRequested {
		return fresh(), false
	}

	slog.Info("resuming from saved state",
		"last_successful_cursor", loaded.LastSuccessfulCursor,
		"last_processed_repo", loaded.LastProcessedRepo,
		"processed_repos", len(loaded.ProcessedRepos))
	return loaded, true
}

// Update applies the mutation, stamps LastUpdated and persists the record.
// Persistence failures are logged but never fail the update: the in-memory
// state stays authoritative for the run.
func (st *Store) Update(s *State, m Mutation) {
	if m.NewCursor != nil && *m.NewCursor != s.CurrentCursor {
		s.CurrentCursor = *m.NewCursor
	}
	if m.LastSuccessfulCursor != nil {
		s.LastSuccessfulCursor = *m.LastSuccessfulCursor
	}
	if m.RepoName != nil {
		s.append(*m.RepoName)
	}
	s.LastUpdated = st.now()

	if err := st.persist(s); err != nil {
		slog.Error("failed to persist state", "path", st.path, "error", err)
	}
}

// MarkCompleted flags the record as finished and persists it.
func (st *Store) MarkCompleted(s *State) {
	s.CompletedSuccessfully = true
	s.LastUpdated = st.now()
	if err := st.persist(s); err != nil {
		slog.Error("failed to persist completed state", "path", st.path, "error", err)
	}
}

// Clear removes the state file so the next run starts from scratch.
func (st *Store) Clear() error {
	if err := os.Remove(st.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	return nil
}

// persist overwrites the state file atomically (temp file + rename).
func (st *Store) persist(s *State) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	dir := filepath.Dir(st.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(st.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, st.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

func fresh() *State {
	return &State{processedSet: make(map[string]struct{})}
}

// decode parses a state record, coercing a malformed processed_repos field to
// an empty list instead of rejecting the whole file.
func decode(data []byte) (*State, error) {
	var raw struct {
		CurrentCursor         string          `json:"current_cursor"`
		LastSuccessfulCursor  string          `json:"last_successful_cursor"`
		LastProcessedRepo     string          `json:"last_processed_repo"`
		LastUpdated           time.Time       `json:"last_updated"`
		CompletedSuccessfully bool            `json:"completed_successfully"`
		ProcessedRepos        json.RawMessage `json:"processed_repos"`
		OutputFileName        string          `json:"output_file_name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	s := &State{
		CurrentCursor:         raw.CurrentCursor,
		LastSuccessfulCursor:  raw.LastSuccessfulCursor,
		LastProcessedRepo:     raw.LastProcessedRepo,
		LastUpdated:           raw.LastUpdated,
		CompletedSuccessfully: raw.CompletedSuccessfully,
		OutputFileName:        raw.OutputFileName,
	}

	if len(raw.ProcessedRepos) > 0 {
		if err := json.Unmarshal(raw.ProcessedRepos, &s.ProcessedRepos); err != nil {
			slog.Warn("processed_repos field is malformed, treating as empty", "error", err)
			s.ProcessedRepos = nil
		}
	}

	s.rebuildSet()
	return s, nil
}
