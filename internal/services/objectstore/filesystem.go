// -----------------------------------------------------------------------
// Filesystem Object Store - local media roots plus HTTP(S) source fetch
// -----------------------------------------------------------------------

package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stayreel/internal/common"
	"github.com/ternarybob/stayreel/internal/interfaces"
	"github.com/ternarybob/stayreel/internal/models"
)

// FilesystemStore implements interfaces.ObjectStore.
// Source refs are file:// URLs, http(s) URLs or paths relative to the source root.
// Published files are copied under the publish root.
type FilesystemStore struct {
	sourceRoot    string
	publishRoot   string
	publicBaseURL string
	client        *http.Client
	logger        arbor.ILogger
}

var _ interfaces.ObjectStore = (*FilesystemStore)(nil)

// NewFilesystemStore creates the store from the [storage.media] config section
func NewFilesystemStore(config common.MediaConfig, logger arbor.ILogger) *FilesystemStore {
	return &FilesystemStore{
		sourceRoot:    config.SourceRoot,
		publishRoot:   config.PublishRoot,
		publicBaseURL: strings.TrimSuffix(config.PublicBaseURL, "/"),
		client:        &http.Client{Timeout: common.ParseDurationOr(config.FetchTimeout, 2*time.Minute)},
		logger:        logger,
	}
}

// Fetch makes sourceRef available inside destDir and returns the local path
func (s *FilesystemStore) Fetch(ctx context.Context, sourceRef, destDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create fetch directory: %w", err)
	}

	u, err := url.Parse(sourceRef)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return s.download(ctx, u, destDir)
	}

	src, err := s.resolveLocal(sourceRef)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(destDir, filepath.Base(src))

	// Hard links are free when the workspace shares a volume with the media root
	if err := os.Link(src, dst); err == nil {
		return dst, nil
	}
	if err := copyFile(ctx, src, dst); err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", sourceRef, err)
	}
	return dst, nil
}

// Publish copies localPath to destinationKey under the publish root
func (s *FilesystemStore) Publish(ctx context.Context, localPath, destinationKey string) (string, error) {
	key, err := cleanKey(destinationKey)
	if err != nil {
		return "", &models.PublishError{Key: destinationKey, Err: err}
	}

	dst := filepath.Join(s.publishRoot, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", &models.PublishError{Key: key, Err: err}
	}

	// Write next to the target and rename so readers never see a partial file
	tmp := dst + ".partial"
	if err := copyFile(ctx, localPath, tmp); err != nil {
		os.Remove(tmp)
		return "", &models.PublishError{Key: key, Err: err}
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return "", &models.PublishError{Key: key, Err: err}
	}

	s.logger.Debug().Str("key", key).Str("path", dst).Msg("Published object")

	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key, nil
	}
	return dst, nil
}

func (s *FilesystemStore) resolveLocal(ref string) (string, error) {
	var p string
	switch {
	case strings.HasPrefix(ref, "file://"):
		u, err := url.Parse(ref)
		if err != nil {
			return "", fmt.Errorf("invalid source ref %q: %w", ref, err)
		}
		p = filepath.FromSlash(u.Path)
	case filepath.IsAbs(ref):
		p = ref
	default:
		rel := filepath.Clean(filepath.FromSlash(ref))
		if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("source ref %q escapes the media root", ref)
		}
		p = filepath.Join(s.sourceRoot, rel)
	}

	info, err := os.Stat(p)
	if err != nil {
		return "", fmt.Errorf("source %s unavailable: %w", ref, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("source %s is a directory", ref)
	}
	return p, nil
}

func (s *FilesystemStore) download(ctx context.Context, u *url.URL, destDir string) (string, error) {
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = "source.mp4"
	}
	dst := filepath.Join(destDir, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download %s: status %d", u.Redacted(), resp.StatusCode)
	}

	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("failed to download %s: %w", u.Redacted(), err)
	}

	s.logger.Debug().Str("url", u.Redacted()).Int64("bytes", n).Msg("Downloaded source")
	return dst, nil
}

// cleanKey rejects keys that would land outside the publish root
func cleanKey(key string) (string, error) {
	k := path.Clean(strings.TrimPrefix(strings.ReplaceAll(key, "\\", "/"), "/"))
	if k == "." || k == ".." || strings.HasPrefix(k, "../") {
		return "", fmt.Errorf("invalid destination key %q", key)
	}
	return k, nil
}

func copyFile(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, &contextReader{ctx: ctx, r: in}); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// contextReader stops long copies once ctx is done
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
