package store

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/camcore/internal/pipelines"
)

// config represents the complete pipelines file for TOML marshaling.
type config struct {
	Version   int                               `toml:"version" json:"version"`
	Pipelines map[string]pipelines.PipelineSpec `toml:"pipelines" json:"pipelines"`
}

// tomlStore implements pipelines.Store using TOML file storage.
type tomlStore struct {
	configPath string

	mu     sync.RWMutex
	config *config
}

// NewTOML creates a new TOML-based store.
func NewTOML(configPath string) pipelines.Store {
	if configPath == "" {
		configPath = "pipelines.toml"
	}

	return &tomlStore{
		configPath: configPath,
		config: &config{
			Version:   1,
			Pipelines: make(map[string]pipelines.PipelineSpec),
		},
	}
}

// Load loads the pipelines file. A missing file is an empty store.
func (s *tomlStore) Load() error {
	data, err := os.ReadFile(s.configPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read pipelines config: %w", err)
	}

	loaded := &config{}
	if unmarshalErr := toml.Unmarshal(data, loaded); unmarshalErr != nil {
		return fmt.Errorf("failed to parse pipelines config: %w", unmarshalErr)
	}
	if loaded.Pipelines == nil {
		loaded.Pipelines = make(map[string]pipelines.PipelineSpec)
	}
	if loaded.Version == 0 {
		loaded.Version = 1
	}
	// map keys win over ids in the body
	for id, spec := range loaded.Pipelines {
		spec.ID = id
		loaded.Pipelines[id] = spec
	}

	s.mu.Lock()
	s.config = loaded
	s.mu.Unlock()
	return nil
}

// Save writes the pipelines file through a temp file and rename.
func (s *tomlStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked()
}

func (s *tomlStore) saveLocked() error {
	dir := filepath.Dir(s.configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(s.config)
	if err != nil {
		return fmt.Errorf("failed to marshal pipelines config: %w", err)
	}

	tmp := s.configPath + ".tmp"
	if writeErr := os.WriteFile(tmp, data, 0o644); writeErr != nil {
		return fmt.Errorf("failed to write pipelines config: %w", writeErr)
	}
	if renameErr := os.Rename(tmp, s.configPath); renameErr != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace pipelines config: %w", renameErr)
	}
	return nil
}

// AddPipeline adds a new pipeline spec.
func (s *tomlStore) AddPipeline(spec pipelines.PipelineSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.Pipelines[spec.ID] = spec
	return s.saveLocked()
}

// UpdatePipeline replaces an existing pipeline spec.
func (s *tomlStore) UpdatePipeline(id string, spec pipelines.PipelineSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.config.Pipelines[id]; !ok {
		return fmt.Errorf("pipeline %s not found", id)
	}
	s.config.Pipelines[id] = spec
	return s.saveLocked()
}

// RemovePipeline removes a pipeline spec.
func (s *tomlStore) RemovePipeline(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.config.Pipelines, id)
	return s.saveLocked()
}

// GetPipeline retrieves a pipeline spec by ID.
func (s *tomlStore) GetPipeline(id string) (pipelines.PipelineSpec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec, ok := s.config.Pipelines[id]
	return spec, ok
}

// GetAllPipelines returns a copy of all pipeline specs.
func (s *tomlStore) GetAllPipelines() map[string]pipelines.PipelineSpec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.config.Pipelines)
}
