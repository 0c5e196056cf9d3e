package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/gitglean/internal/config"
	"github.com/bull/gitglean/internal/retriever"
	"github.com/bull/gitglean/internal/storage"
)

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()

	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"ingest", "search", "serve", "mcp"})
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestCommandArgs(t *testing.T) {
	tests := []struct {
		args    []string
		wantErr bool
	}{
		{[]string{"ingest"}, true},
		{[]string{"ingest", "a", "b"}, true},
		{[]string{"search", "https://github.com/a/b"}, true},
		{[]string{"serve", "extra"}, true},
	}

	for _, tt := range tests {
		root := newRootCmd()
		cmd, args, err := root.Find(tt.args)
		require.NoError(t, err)
		err = cmd.Args(cmd, args)
		assert.Equal(t, tt.wantErr, err != nil, tt.args)
	}
}

func TestPrintResults(t *testing.T) {
	var buf bytes.Buffer
	printResults(&buf, []retriever.Result{
		{Source: "auth.go", Score: 0.91234, PageContent: "line1\nline2\nline3"},
	}, 2)

	out := buf.String()
	assert.Contains(t, out, " 1. auth.go (score 0.9123)")
	assert.Contains(t, out, "line2")
	assert.NotContains(t, out, "line3")

	buf.Reset()
	printResults(&buf, nil, 2)
	assert.Equal(t, "No matching files found.\n", buf.String())
}

func TestPersistMemoryIndex(t *testing.T) {
	cacheDir := t.TempDir()

	cfg := config.Defaults()
	require.True(t, isEphemeral(&cfg))
	assert.True(t, persistMemoryIndex(&cfg, cacheDir))
	assert.Equal(t, filepath.Join(cacheDir, "gitglean", "index"), cfg.Storage.Memory.Path)
	assert.False(t, isEphemeral(&cfg))

	explicit := config.Defaults()
	explicit.Storage.Memory.Path = "/data/index"
	assert.False(t, persistMemoryIndex(&explicit, cacheDir))
	assert.Equal(t, "/data/index", explicit.Storage.Memory.Path)

	qdrant := config.Defaults()
	qdrant.Storage.Backend = storage.BackendQdrant
	assert.False(t, persistMemoryIndex(&qdrant, cacheDir))
	assert.Empty(t, qdrant.Storage.Memory.Path)

	noCache := config.Defaults()
	assert.False(t, persistMemoryIndex(&noCache, ""))
}
