package recognition

import (
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/language"
)

//go:embed manifest.json
var embeddedManifest []byte

// ModelInfo describes one downloadable model asset.
type ModelInfo struct {
	Locale    string `json:"locale"`
	File      string `json:"file"`
	URL       string `json:"url"`
	SHA256    string `json:"sha256"`
	SizeBytes int64  `json:"size_bytes"`
}

// Manifest lists the model assets known to this build.
type Manifest struct {
	Models []ModelInfo `json:"models"`
}

// DefaultManifest decodes the embedded manifest.
func DefaultManifest() (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(embeddedManifest, &m); err != nil {
		return Manifest{}, fmt.Errorf("recognition: decode embedded manifest: %w", err)
	}
	return m, nil
}

// Locales returns the locales the manifest can serve.
func (m Manifest) Locales() []language.Tag {
	tags := make([]language.Tag, 0, len(m.Models))
	for _, info := range m.Models {
		tag, err := language.Parse(info.Locale)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
	}
	return tags
}

// Lookup finds the model entry for a locale.
func (m Manifest) Lookup(tag language.Tag) (ModelInfo, bool) {
	want := tag.String()
	for _, info := range m.Models {
		if strings.EqualFold(info.Locale, want) {
			return info, true
		}
	}
	return ModelInfo{}, false
}

// Manager resolves and downloads model assets into a local data directory.
type Manager struct {
	baseDir  string
	manifest Manifest
	client   *http.Client
	log      *slog.Logger
}

// NewManager prepares the models directory under baseDir.
func NewManager(baseDir string, manifest Manifest, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Join(baseDir, "models")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recognition: create models dir: %w", err)
	}
	return &Manager{
		baseDir:  dir,
		manifest: manifest,
		client:   http.DefaultClient,
		log:      logger.With("component", "recognition.Manager"),
	}, nil
}

// Installed reports whether the model for a locale is already on disk, and
// where.
func (m *Manager) Installed(tag language.Tag) (string, bool) {
	info, ok := m.manifest.Lookup(tag)
	if !ok {
		return "", false
	}
	path := filepath.Join(m.baseDir, info.File)
	st, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	if info.SizeBytes > 0 && st.Size() != info.SizeBytes {
		return "", false
	}
	return path, true
}

// EnsureLocale downloads and verifies the model asset for the locale if it is
// not installed yet, reporting progress in [0, 1]. The download is streamed
// to a temp file and renamed into place only after the checksum passes.
func (m *Manager) EnsureLocale(ctx context.Context, tag language.Tag, progress func(float64)) (string, error) {
	info, ok := m.manifest.Lookup(tag)
	if !ok {
		return "", fmt.Errorf("%w: no model for locale %s", ErrModelInstall, tag)
	}
	path := filepath.Join(m.baseDir, info.File)
	if existing, ok := m.Installed(tag); ok {
		report(progress, 1)
		return existing, nil
	}

	m.log.Info("downloading model", "locale", tag.String(), "url", info.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrModelInstall, err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: fetch %s: %v", ErrModelInstall, info.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: fetch %s: status %d", ErrModelInstall, info.URL, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(m.baseDir, info.File+".download-*")
	if err != nil {
		return "", fmt.Errorf("%w: create temp file: %v", ErrModelInstall, err)
	}
	defer os.Remove(tmp.Name())

	total := resp.ContentLength
	if total <= 0 {
		total = info.SizeBytes
	}
	hasher := sha256.New()
	written, err := copyWithProgress(ctx, io.MultiWriter(tmp, hasher), resp.Body, total, progress)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("%w: download %s: %v", ErrModelInstall, info.URL, err)
	}

	if info.SHA256 != "" {
		sum := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(sum, info.SHA256) {
			return "", fmt.Errorf("%w: checksum mismatch for %s: got %s", ErrModelInstall, info.File, sum)
		}
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("%w: install %s: %v", ErrModelInstall, info.File, err)
	}
	report(progress, 1)
	m.log.Info("model installed", "locale", tag.String(), "path", path, "bytes", written)
	return path, nil
}

func copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, total int64, progress func(float64)) (int64, error) {
	var written int64
	buf := make([]byte, 128*1024)
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, err
			}
			written += int64(n)
			if total > 0 {
				report(progress, float64(written)/float64(total))
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

func report(progress func(float64), v float64) {
	if progress == nil {
		return
	}
	if v > 1 {
		v = 1
	}
	progress(v)
}
