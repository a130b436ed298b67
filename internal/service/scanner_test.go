package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEndpointWriter struct {
	projectID string
	endpoints []Endpoint
	err       error
}

func (f *fakeEndpointWriter) ReplaceEndpoints(_ context.Context, projectID string, endpoints []Endpoint) error {
	f.projectID = projectID
	f.endpoints = endpoints
	return f.err
}

// fixtureClone fills the clone target with an in-test repository
// instead of hitting the network.
func fixtureClone(files map[string]string) func(ctx context.Context, gitURL, dir string) error {
	return func(_ context.Context, _, dir string) error {
		for name, content := range files {
			path := filepath.Join(dir, name)
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return err
			}
		}
		return nil
	}
}

func TestScanner_ScanProject(t *testing.T) {
	store := &fakeEndpointWriter{}
	scanner := NewScanner(slog.New(slog.DiscardHandler), store)
	scanner.clone = fixtureClone(map[string]string{
		"app/routes.py":              "@router.get(\"/users\")\n@router.post(\"/users\")",
		"app/admin.py":               `@app.get("/users")`, // duplicate of routes.py's GET
		"web/server.js":              `app.put("/users", h)`,
		"node_modules/lib/routes.js": `app.delete("/should-not-appear", h)`,
		"README.md":                  `router.get("/not-code")`,
	})

	count, err := scanner.ScanProject(context.Background(), "proj-1", "https://example.com/repo.git")

	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, "proj-1", store.projectID)

	found := make(map[string]string)
	for _, ep := range store.endpoints {
		found[ep.Method+" "+ep.Path] = ep.Framework
	}
	assert.Equal(t, map[string]string{
		"GET /users":  FrameworkFastAPI,
		"POST /users": FrameworkFastAPI,
		"PUT /users":  FrameworkExpress,
	}, found)
}

func TestScanner_CloneFailure(t *testing.T) {
	store := &fakeEndpointWriter{}
	scanner := NewScanner(slog.New(slog.DiscardHandler), store)
	scanner.clone = func(_ context.Context, _, _ string) error {
		return errors.New("remote unreachable")
	}

	_, err := scanner.ScanProject(context.Background(), "proj-1", "https://example.com/repo.git")

	require.ErrorContains(t, err, "remote unreachable")
	assert.Nil(t, store.endpoints, "nothing is stored when the clone fails")
}

func TestScanner_StoreFailure(t *testing.T) {
	store := &fakeEndpointWriter{err: errors.New("db down")}
	scanner := NewScanner(slog.New(slog.DiscardHandler), store)
	scanner.clone = fixtureClone(map[string]string{"a.py": `@router.get("/x")`})

	_, err := scanner.ScanProject(context.Background(), "proj-1", "git://x")
	require.ErrorContains(t, err, "db down")
}
