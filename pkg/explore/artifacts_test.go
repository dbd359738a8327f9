// pkg/explore/artifacts_test.go
package explore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestArtifactStore(t *testing.T) *ArtifactStore {
	t.Helper()
	store, err := NewArtifactStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestSaveScreenshotWritesFile(t *testing.T) {
	store := newTestArtifactStore(t)
	sess := newFakeSession()

	artifact, err := store.SaveScreenshot(context.Background(), sess, "initial")

	require.NoError(t, err)
	assert.Equal(t, ArtifactScreenshot, artifact.Type)
	assert.FileExists(t, artifact.Path)

	data, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Len(t, store.List(), 1)
}

func TestSaveScreenshotSanitizesLabel(t *testing.T) {
	store := newTestArtifactStore(t)
	sess := newFakeSession()

	artifact, err := store.SaveScreenshot(context.Background(), sess, "post login / retry #2")

	require.NoError(t, err)
	base := filepath.Base(artifact.Path)
	assert.NotContains(t, base, "/")
	assert.NotContains(t, base, " ")
	assert.NotContains(t, base, "#")
}

func TestScanVideosPicksUpRecordings(t *testing.T) {
	store := newTestArtifactStore(t)
	for _, name := range []string{"run.webm", "clip.mp4", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), name), []byte("x"), 0o644))
	}

	store.ScanVideos()

	var videos []Artifact
	for _, a := range store.List() {
		if a.Type == ArtifactVideo {
			videos = append(videos, a)
		}
	}
	assert.Len(t, videos, 2)
}

func TestListReturnsCopy(t *testing.T) {
	store := newTestArtifactStore(t)
	sess := newFakeSession()
	_, err := store.SaveScreenshot(context.Background(), sess, "one")
	require.NoError(t, err)

	list := store.List()
	list[0].Path = "tampered"

	assert.NotEqual(t, "tampered", store.List()[0].Path)
}
