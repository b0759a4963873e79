package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Manager persists run manifests for a pipeline.
//
// Each completed run writes two files under the manifest directory: a
// per-run manifest named after the run ID, and a "latest" pointer that is
// replaced atomically so a reader never observes a half-written manifest.
type Manager struct {
	directory    string
	pipelineName string
	configHash   string
}

// NewManager creates a manifest manager rooted at dir. The directory is
// created if it doesn't exist.
func NewManager(dir, pipelineName string, config interface{}) (*Manager, error) {
	if dir == "" {
		return nil, fmt.Errorf("manifest directory cannot be empty")
	}
	if pipelineName == "" {
		return nil, fmt.Errorf("pipeline name cannot be empty")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create manifest directory: %w", err)
	}

	return &Manager{
		directory:    dir,
		pipelineName: pipelineName,
		configHash:   calculateConfigHash(config),
	}, nil
}

// Record writes the manifest for a completed run and flips the latest
// pointer to it.
func (m *Manager) Record(manifest Manifest) error {
	if manifest.RunID == "" {
		return fmt.Errorf("manifest is missing a run ID")
	}

	manifest.Version = ManifestVersion
	manifest.PipelineName = m.pipelineName
	manifest.ConfigHash = m.configHash
	manifest.WrittenAt = time.Now().UTC()

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	runPath := filepath.Join(m.directory, fmt.Sprintf("run-%s.json", manifest.RunID))
	if err := WriteAtomic(runPath, data); err != nil {
		return fmt.Errorf("failed to write run manifest: %w", err)
	}

	if err := WriteAtomic(m.latestPath(), data); err != nil {
		return fmt.Errorf("failed to write latest manifest: %w", err)
	}

	return nil
}

// LoadLatest returns the manifest of the most recent completed run.
//
// A missing manifest is not a fatal condition - the pipeline simply has no
// recorded prior run. A config-hash mismatch is logged as a warning, not an
// error, since reconfiguration between runs is legitimate.
func (m *Manager) LoadLatest() (*Manifest, error) {
	path := m.latestPath()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("no manifest found at %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest (possibly corrupted): %w", err)
	}

	if manifest.Version == "" || manifest.RunID == "" {
		return nil, fmt.Errorf("invalid manifest: missing required fields")
	}

	if manifest.ConfigHash != m.configHash {
		log.Printf("[WARN] Configuration changed since last recorded run (recorded: %s, current: %s)",
			manifest.ConfigHash, m.configHash)
	}

	return &manifest, nil
}

func (m *Manager) latestPath() string {
	return filepath.Join(m.directory, fmt.Sprintf("manifest-%s-latest.json", m.pipelineName))
}

// calculateConfigHash computes a hash of the configuration for change detection
func calculateConfigHash(config interface{}) string {
	if config == nil {
		return "no-config"
	}

	data, err := json.Marshal(config)
	if err != nil {
		return "hash-error"
	}

	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}
