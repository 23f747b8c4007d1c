package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrChecksumMismatch reports a downloaded file whose digest differs from the manifest.
var ErrChecksumMismatch = errors.New("models: checksum mismatch")

// Manager owns the on-disk model directory.
type Manager struct {
	baseDir string
	log     *slog.Logger
	client  *http.Client
}

// EnsureOptions customise EnsureVariant.
type EnsureOptions struct {
	Manifest Manifest
	// Override short-circuits resolution with an explicit model path.
	Override string
	// Client downloads missing files. Nil uses a client with a generous timeout.
	Client *http.Client
}

// NewManager prepares <baseDir>/models.
func NewManager(baseDir string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(baseDir) == "" {
		return nil, errors.New("models: base directory required")
	}
	m := &Manager{
		baseDir: filepath.Clean(baseDir),
		log:     logger.With("component", "models.Manager"),
		client:  &http.Client{Timeout: 30 * time.Minute},
	}
	if err := os.MkdirAll(m.ModelsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("models: create %s: %w", m.ModelsDir(), err)
	}
	return m, nil
}

// ModelsDir is where variant files live.
func (m *Manager) ModelsDir() string {
	return filepath.Join(m.baseDir, "models")
}

// Resolve returns the path a variant would occupy, or override when set. An
// override must exist; a variant path need not.
func (m *Manager) Resolve(variant, override string) (string, error) {
	if override = strings.TrimSpace(override); override != "" {
		if _, err := os.Stat(override); err != nil {
			return "", fmt.Errorf("models: model override %s: %w", override, err)
		}
		return override, nil
	}
	manifest, err := DefaultManifest()
	if err != nil {
		return "", err
	}
	return m.pathFor(manifest, variant)
}

func (m *Manager) pathFor(manifest Manifest, variant string) (string, error) {
	v, err := manifest.Lookup(variant)
	if err != nil {
		return "", err
	}
	return filepath.Join(m.ModelsDir(), filepath.Base(v.Filename)), nil
}

// EnsureVariant returns a local path for variant, downloading it when missing.
func (m *Manager) EnsureVariant(ctx context.Context, variant string, opts EnsureOptions) (string, error) {
	if strings.TrimSpace(opts.Override) != "" {
		return m.Resolve(variant, opts.Override)
	}
	v, err := opts.Manifest.Lookup(variant)
	if err != nil {
		return "", err
	}
	path, err := m.pathFor(opts.Manifest, variant)
	if err != nil {
		return "", err
	}

	if info, err := os.Stat(path); err == nil {
		if v.SizeBytes > 0 && info.Size() != v.SizeBytes {
			m.log.Warn("model size differs from manifest; re-downloading",
				"variant", variant, "path", path, "size", info.Size(), "expected", v.SizeBytes)
		} else {
			m.log.Debug("model present", "variant", variant, "path", path)
			return path, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("models: stat %s: %w", path, err)
	}

	if v.URL == "" {
		return "", fmt.Errorf("models: variant %q missing at %s and has no download URL", variant, path)
	}
	client := opts.Client
	if client == nil {
		client = m.client
	}
	if err := m.download(ctx, client, v, path); err != nil {
		return "", err
	}
	return path, nil
}

func (m *Manager) download(ctx context.Context, client *http.Client, v Variant, path string) error {
	log := m.log.With("url", v.URL, "path", path)
	log.Info("downloading model")
	started := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.URL, nil)
	if err != nil {
		return fmt.Errorf("models: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("models: download %s: %w", v.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("models: download %s: unexpected status %s", v.URL, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.part")
	if err != nil {
		return fmt.Errorf("models: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("models: write %s: %w", tmp.Name(), err)
	}

	sum := hex.EncodeToString(hasher.Sum(nil))
	if v.SHA256 == "" {
		log.Warn("manifest has no checksum for model; download not verified",
			"sha256", sum, "bytes", written,
			"hint", "run cmd/tools/update_manifest to pin digests")
	} else if !strings.EqualFold(sum, v.SHA256) {
		return fmt.Errorf("%w: %s has sha256 %s, expected %s", ErrChecksumMismatch, v.Filename, sum, v.SHA256)
	}
	if v.SizeBytes > 0 && written != v.SizeBytes {
		return fmt.Errorf("%w: %s has %d bytes, expected %d", ErrChecksumMismatch, v.Filename, written, v.SizeBytes)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("models: install %s: %w", path, err)
	}
	log.Info("model downloaded", "bytes", written, "sha256", sum, "duration_ms", time.Since(started).Milliseconds())
	return nil
}

// Digest streams r and returns its size and hex sha256.
func Digest(r io.Reader) (int64, string, error) {
	hasher := sha256.New()
	n, err := io.Copy(hasher, r)
	if err != nil {
		return n, "", err
	}
	return n, hex.EncodeToString(hasher.Sum(nil)), nil
}
