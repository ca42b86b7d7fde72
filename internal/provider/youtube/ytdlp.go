package youtube

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/llehouerou/wavebot/internal/song"
)

const printFormat = "%(id)s\t%(title)s\t%(uploader)s\t%(duration)s"

// Runner executes yt-dlp. Search and Metadata return lines formatted as
// id, title, uploader and duration separated by tabs.
type Runner interface {
	Search(ctx context.Context, query string, n int) (string, error)
	Metadata(ctx context.Context, url string) (string, error)
	Download(ctx context.Context, url, dst string) error
}

// Install makes sure a yt-dlp binary is available, downloading it if
// needed.
func Install(ctx context.Context) error {
	_, err := ytdlp.Install(ctx, &ytdlp.InstallOptions{AllowVersionMismatch: true})
	return err
}

type cli struct{}

func newCommand() *ytdlp.Command {
	return ytdlp.New().
		Quiet().
		NoWarnings().
		IgnoreConfig().
		NoPlaylist()
}

func (cli) Search(ctx context.Context, query string, n int) (string, error) {
	res, err := newCommand().
		FlatPlaylist().
		Print(printFormat).
		PlaylistItems(fmt.Sprintf("1-%d", n)).
		Run(ctx, fmt.Sprintf("ytsearch%d:%s", n, query))
	if err != nil {
		return "", classify(res, err)
	}
	return res.Stdout, nil
}

func (cli) Metadata(ctx context.Context, url string) (string, error) {
	res, err := newCommand().
		Print(printFormat).
		Run(ctx, "--skip-download", url)
	if err != nil {
		return "", classify(res, err)
	}
	return res.Stdout, nil
}

// Download extracts the audio of url as mp3 into dst.
func (cli) Download(ctx context.Context, url, dst string) error {
	res, err := newCommand().
		Format("bestaudio/best").
		ExtractAudio().
		AudioFormat("mp3").
		Output(dst + ".%(ext)s").
		Run(ctx, url)
	if err != nil {
		return classify(res, err)
	}
	return os.Rename(dst+".mp3", dst)
}

// classify maps yt-dlp failures to song errors.
func classify(res *ytdlp.Result, err error) error {
	if res == nil {
		return err
	}
	stderr := res.Stderr
	switch {
	case strings.Contains(stderr, "Video unavailable"), strings.Contains(stderr, "Private video"):
		return fmt.Errorf("%w: %s", song.ErrNotFound, firstLine(stderr))
	case strings.Contains(stderr, "HTTP Error 403"),
		strings.Contains(stderr, "HTTP Error 5"),
		strings.Contains(stderr, "timed out"):
		return song.Transient(fmt.Errorf("yt-dlp: %s: %w", firstLine(stderr), err))
	case stderr != "":
		return fmt.Errorf("yt-dlp: %s: %w", firstLine(stderr), err)
	}
	return err
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

type entry struct {
	ID       string
	Title    string
	Uploader string
	Duration time.Duration
}

var errNoEntry = errors.New("no video in yt-dlp output")

// parseEntries reads printFormat lines, skipping malformed ones.
func parseEntries(stdout string) []entry {
	var out []entry
	for line := range strings.Lines(stdout) {
		parts := strings.Split(strings.TrimRight(line, "\r\n"), "\t")
		if len(parts) < 4 || parts[0] == "" || parts[0] == "NA" {
			continue
		}
		e := entry{ID: parts[0], Title: parts[1], Uploader: parts[2]}
		if secs, err := strconv.ParseFloat(parts[3], 64); err == nil {
			e.Duration = time.Duration(secs * float64(time.Second))
		}
		if e.Uploader == "NA" {
			e.Uploader = ""
		}
		out = append(out, e)
	}
	return out
}
