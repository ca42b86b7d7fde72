package notify

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec // file naming only
	"encoding/hex"
	"fmt"
	"image"
	_ "image/jpeg" // JPEG decoder for artwork
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"
)

const (
	thumbnailSize   = 128
	maxArtworkBytes = 8 << 20
)

// Artwork downloads cover art and keeps small PNG thumbnails on disk for
// use as notification icons.
type Artwork struct {
	dir    string
	client *http.Client
}

// NewArtwork stores thumbnails under dir.
func NewArtwork(dir string, client *http.Client) *Artwork {
	if client == nil {
		client = http.DefaultClient
	}
	return &Artwork{dir: dir, client: client}
}

// Thumbnail returns the path of the thumbnail for url, fetching it on
// first use.
func (a *Artwork) Thumbnail(ctx context.Context, url string) (string, error) {
	sum := sha1.Sum([]byte(url)) //nolint:gosec // file naming only
	path := filepath.Join(a.dir, hex.EncodeToString(sum[:])+".png")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	data, err := a.fetch(ctx, url)
	if err != nil {
		return "", fmt.Errorf("fetch artwork: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode artwork: %w", err)
	}
	thumb := resize.Thumbnail(thumbnailSize, thumbnailSize, img, resize.Lanczos3)

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	err = png.Encode(f, thumb)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("write thumbnail: %w", err)
	}
	return path, nil
}

// fetch reads the image behind url. file:// URLs are read from disk.
func (a *Artwork) fetch(ctx context.Context, url string) ([]byte, error) {
	if name, ok := strings.CutPrefix(url, "file://"); ok {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, maxArtworkBytes))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxArtworkBytes))
}
