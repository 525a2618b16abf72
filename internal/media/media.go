// Package media downloads item images and prepares them as post attachments.
package media

import (
	"bytes"
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
	"sort"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

var ErrTooLarge = errors.New("image exceeds size limit")

type Config struct {
	Dir       string
	MaxBytes  int64
	Width     int
	Height    int
	Timeout   time.Duration
	UserAgent string
}

type Preparer struct {
	httpClient *http.Client
	cfg        Config
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Preparer {
	return &Preparer{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger.With("component", "media"),
	}
}

// Prepare returns the local path of a JPEG rendition of imageURL cropped to the
// configured size, downloading it unless a previous call already did.
func (p *Preparer) Prepare(ctx context.Context, imageURL string) (string, error) {
	if imageURL == "" {
		return "", nil
	}

	dest := filepath.Join(p.cfg.Dir, fileName(imageURL))
	if _, err := os.Stat(dest); err == nil {
		p.logger.Debug("media cache hit", "file", filepath.Base(dest))
		return dest, nil
	}

	raw, err := p.download(ctx, imageURL)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", imageURL, err)
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	img = imaging.Fill(img, p.cfg.Width, p.cfg.Height, imaging.Center, imaging.Lanczos)

	if err := os.MkdirAll(p.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}

	tmp, err := os.CreateTemp(p.cfg.Dir, ".media-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := imaging.Encode(tmp, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		tmp.Close()
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("save media: %w", err)
	}

	p.logger.Info("media saved", "file", filepath.Base(dest), "source", imageURL)
	return dest, nil
}

func (p *Preparer) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if resp.ContentLength > p.cfg.MaxBytes {
		return nil, ErrTooLarge
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, p.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(raw)) > p.cfg.MaxBytes {
		return nil, ErrTooLarge
	}
	return raw, nil
}

// Cleanup deletes the oldest prepared files so at most maxFiles remain.
func (p *Preparer) Cleanup(maxFiles int) (int, error) {
	entries, err := os.ReadDir(p.cfg.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read media dir: %w", err)
	}

	type file struct {
		path    string
		modTime time.Time
	}
	var files []file
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jpg") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, file{path: filepath.Join(p.cfg.Dir, e.Name()), modTime: info.ModTime()})
	}

	excess := len(files) - maxFiles
	if excess <= 0 {
		return 0, nil
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	deleted := 0
	for _, f := range files[:excess] {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("failed to remove media file", "file", f.path, "error", err)
			continue
		}
		deleted++
	}

	p.logger.Info("media cleanup completed", "deleted", deleted)
	return deleted, nil
}

func fileName(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:16] + ".jpg"
}
