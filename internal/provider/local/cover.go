package local

import (
	"os"
	"path/filepath"
)

// coverNames lists common album art filenames in priority order.
var coverNames = []string{
	"cover.jpg", "cover.png", "cover.jpeg",
	"folder.jpg", "folder.png", "folder.jpeg",
	"album.jpg", "album.png", "album.jpeg",
	"front.jpg", "front.png", "front.jpeg",
}

// findCover returns the cover image stored next to the file at path, or
// "" when there is none. Results are remembered per directory for the
// duration of a scan.
func findCover(path string, seen map[string]string) string {
	dir := filepath.Dir(path)
	if cover, ok := seen[dir]; ok {
		return cover
	}
	cover := ""
	for _, name := range coverNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			cover = candidate
			break
		}
	}
	seen[dir] = cover
	return cover
}
