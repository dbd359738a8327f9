// pkg/explore/artifacts.go
package explore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/rover-cli/pkg/browser"
)

// ArtifactStore owns the artifact directory of one run. It is safe for use
// from the run loop and the login detector within the same run.
type ArtifactStore struct {
	dir    string
	logger *zap.Logger

	mu   sync.Mutex
	list []Artifact
}

// NewArtifactStore creates the artifact directory if needed.
func NewArtifactStore(dir string, logger *zap.Logger) (*ArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
	}
	return &ArtifactStore{dir: dir, logger: logger.Named("artifacts")}, nil
}

// Dir returns the artifact directory path.
func (s *ArtifactStore) Dir() string {
	return s.dir
}

// SaveScreenshot captures the session viewport into a timestamped PNG and
// records it as an artifact.
func (s *ArtifactStore) SaveScreenshot(ctx context.Context, sess browser.Session, label string) (Artifact, error) {
	data, err := sess.Screenshot(ctx)
	if err != nil {
		return Artifact{}, fmt.Errorf("screenshot capture failed: %w", err)
	}

	name := fmt.Sprintf("screenshot_%s_%d.png", sanitizeLabel(label), time.Now().UnixMilli())
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Artifact{}, fmt.Errorf("failed to write screenshot %s: %w", path, err)
	}

	artifact := Artifact{Type: ArtifactScreenshot, Path: path}
	s.append(artifact)
	s.logger.Debug("Screenshot captured", zap.String("path", path))
	return artifact, nil
}

// ScanVideos registers any video files written into the artifact directory
// during the session (e.g. by a recording-enabled browser).
func (s *ArtifactStore) ScanVideos() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("Failed to scan artifact directory for videos", zap.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".webm" || ext == ".mp4" {
			s.append(Artifact{Type: ArtifactVideo, Path: filepath.Join(s.dir, entry.Name())})
		}
	}
}

func (s *ArtifactStore) append(a Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = append(s.list, a)
}

// List returns a copy of the collected artifacts in capture order.
func (s *ArtifactStore) List() []Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Artifact, len(s.list))
	copy(out, s.list)
	return out
}

func sanitizeLabel(label string) string {
	label = strings.TrimSpace(strings.ToLower(label))
	if label == "" {
		return "page"
	}
	var b strings.Builder
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
