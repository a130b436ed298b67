package service

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// Directories a scan never descends into
var skippedDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"__pycache__":  true,
	"venv":         true,
}

// EndpointWriter persists the result of a scan
type EndpointWriter interface {
	ReplaceEndpoints(ctx context.Context, projectID string, endpoints []Endpoint) error
}

// Scanner clones a project's repository and sweeps it for API routes
type Scanner struct {
	logger *slog.Logger
	store  EndpointWriter
	clone  func(ctx context.Context, gitURL, dir string) error
}

// NewScanner creates a Scanner that clones over git
func NewScanner(logger *slog.Logger, store EndpointWriter) *Scanner {
	return &Scanner{
		logger: logger,
		store:  store,
		clone:  gitClone,
	}
}

// ScanProject clones the repository, detects every unique endpoint,
// and replaces the project's stored endpoint set. It returns the
// number of unique endpoints found.
func (s *Scanner) ScanProject(ctx context.Context, projectID, gitURL string) (int, error) {
	tempDir, err := os.MkdirTemp("", "ai_testgen_")
	if err != nil {
		return 0, fmt.Errorf("failed to create scan directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	s.logger.Info("Cloning repository",
		slog.String("project_id", projectID),
		slog.String("git_url", gitURL),
	)

	if err := s.clone(ctx, gitURL, tempDir); err != nil {
		return 0, fmt.Errorf("failed to clone repository: %w", err)
	}

	endpoints, err := discoverEndpoints(tempDir)
	if err != nil {
		return 0, fmt.Errorf("failed to walk repository: %w", err)
	}

	if err := s.store.ReplaceEndpoints(ctx, projectID, endpoints); err != nil {
		return 0, err
	}

	s.logger.Info("Scan complete",
		slog.String("project_id", projectID),
		slog.Int("endpoints_found", len(endpoints)),
	)
	return len(endpoints), nil
}

// discoverEndpoints walks the checkout and collects unique
// method+path pairs.
func discoverEndpoints(root string) ([]Endpoint, error) {
	var endpoints []Endpoint
	seen := make(map[string]bool)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		for _, ep := range DetectEndpoints(path) {
			key := ep.Method + ":" + ep.Path
			if seen[key] {
				continue
			}
			seen[key] = true
			endpoints = append(endpoints, ep)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return endpoints, nil
}

// gitClone performs a shallow clone for speed; scan only needs the
// current tree.
func gitClone(ctx context.Context, gitURL, dir string) error {
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth=1", gitURL, dir)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git clone failed: %s", firstLine(string(out)))
	}
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
