package source

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"mercator-hq/ganymede/pkg/policy/engine"
)

// FileSource loads policies from YAML files on disk. The path can be a
// single file or a directory; directories are walked and every .yaml and
// .yml file is loaded.
type FileSource struct {
	path   string
	logger *slog.Logger
}

// policyFile is the on-disk document shape.
type policyFile struct {
	Policies []*engine.Policy `yaml:"policies"`
}

// NewFileSource creates a file-based policy source.
func NewFileSource(path string, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{
		path:   path,
		logger: logger.With("component", "policy.source"),
	}
}

// LoadPolicies loads all policies from the configured path. Within a
// directory, files that fail to parse are skipped with a warning; a
// duplicate policy id across files is an error.
func (s *FileSource) LoadPolicies() ([]*engine.Policy, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path %q: %w", s.path, err)
	}

	var policies []*engine.Policy
	if info.IsDir() {
		policies, err = s.loadDirectory()
	} else {
		policies, err = s.loadFile(s.path)
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(policies))
	for _, p := range policies {
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate policy id %q", p.ID)
		}
		seen[p.ID] = true
	}

	s.logger.Info("loaded policies",
		"path", s.path,
		"policy_count", len(policies))
	return policies, nil
}

func (s *FileSource) loadDirectory() ([]*engine.Policy, error) {
	var policies []*engine.Policy

	err := filepath.Walk(s.path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		loaded, err := s.loadFile(path)
		if err != nil {
			s.logger.Warn("failed to load policy file, skipping",
				"path", path,
				"error", err)
			return nil
		}
		policies = append(policies, loaded...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory %q: %w", s.path, err)
	}

	return policies, nil
}

func (s *FileSource) loadFile(path string) ([]*engine.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %q: %w", path, err)
	}

	var doc policyFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %q: %w", path, err)
	}

	for _, p := range doc.Policies {
		if p.ID == "" {
			return nil, fmt.Errorf("policy in %q has no id", path)
		}
		if p.Condition == nil {
			return nil, fmt.Errorf("policy %q has no condition", p.ID)
		}
		if err := p.Condition.Validate(); err != nil {
			return nil, fmt.Errorf("policy %q has an invalid condition: %w", p.ID, err)
		}
		if p.Action == "" {
			return nil, fmt.Errorf("policy %q has no action", p.ID)
		}
	}

	s.logger.Debug("loaded policy file",
		"path", path,
		"policy_count", len(doc.Policies))
	return doc.Policies, nil
}
