package tags

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
)

// ErrNotWAV is returned when a file does not start with a RIFF/WAVE header.
var ErrNotWAV = errors.New("not a RIFF/WAVE file")

const (
	riffHeaderSize = 12
	chunkHeaderLen = 8
	id3ChunkID     = "id3 "

	txxxArtworkURL = "Artwork URL"
	txxxSource     = "Source"
	txxxSourceID   = "Source ID"
)

// WriteWAV appends an ID3v2.4 tag as an "id3 " chunk to a WAV file and
// updates the RIFF size. The file must not already carry a tag chunk.
func WriteWAV(path string, t *Tag) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := checkRIFF(f); err != nil {
		return err
	}

	var payload bytes.Buffer
	if _, err := buildID3(t).WriteTo(&payload); err != nil {
		return fmt.Errorf("encode id3: %w", err)
	}

	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	// RIFF chunks are word aligned
	if end%2 == 1 {
		if _, err := f.Write([]byte{0}); err != nil {
			return err
		}
		end++
	}

	hdr := make([]byte, chunkHeaderLen)
	copy(hdr, id3ChunkID)
	binary.LittleEndian.PutUint32(hdr[4:], uint32(payload.Len())) //nolint:gosec // tag is a few KB
	if _, err := f.Write(hdr); err != nil {
		return err
	}
	if _, err := f.Write(payload.Bytes()); err != nil {
		return err
	}
	size := end + chunkHeaderLen + int64(payload.Len())
	if payload.Len()%2 == 1 {
		if _, err := f.Write([]byte{0}); err != nil {
			return err
		}
		size++
	}

	riffSize := make([]byte, 4)
	binary.LittleEndian.PutUint32(riffSize, uint32(size-8)) //nolint:gosec // WAV files are < 4GB
	if _, err := f.WriteAt(riffSize, 4); err != nil {
		return fmt.Errorf("update riff size: %w", err)
	}
	return nil
}

func buildID3(t *Tag) *id3v2.Tag {
	tag := id3v2.NewEmptyTag()
	tag.SetVersion(4)
	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetTitle(t.Title)
	tag.SetArtist(t.Artist)
	if t.Album != "" {
		tag.SetAlbum(t.Album)
	}
	addTXXXFrame(tag, txxxArtworkURL, t.ArtworkURL)
	addTXXXFrame(tag, txxxSource, t.Source)
	addTXXXFrame(tag, txxxSourceID, t.SourceID)
	return tag
}

func addTXXXFrame(tag *id3v2.Tag, description, value string) {
	if value == "" {
		return
	}
	tag.AddUserDefinedTextFrame(id3v2.UserDefinedTextFrame{
		Encoding:    id3v2.EncodingUTF8,
		Description: description,
		Value:       value,
	})
}

// ReadWAV reads the "id3 " chunk of a WAV file. Files without one get a
// title derived from the file name.
func ReadWAV(path string) (*Tag, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := checkRIFF(f); err != nil {
		return nil, err
	}

	t := &Tag{
		Path:  path,
		Title: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
	}

	hdr := make([]byte, chunkHeaderLen)
	for {
		if _, err := io.ReadFull(f, hdr); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return t, nil
			}
			return nil, err
		}
		size := int64(binary.LittleEndian.Uint32(hdr[4:]))
		if !strings.EqualFold(string(hdr[:4]), id3ChunkID) {
			if _, err := f.Seek(size+size%2, io.SeekCurrent); err != nil {
				return nil, err
			}
			continue
		}

		id3tag, err := id3v2.ParseReader(io.LimitReader(f, size), id3v2.Options{Parse: true})
		if err != nil {
			return nil, fmt.Errorf("parse id3 chunk: %w", err)
		}
		if title := id3tag.Title(); title != "" {
			t.Title = title
		}
		t.Artist = id3tag.Artist()
		t.Album = id3tag.Album()
		t.ArtworkURL = getTXXXFrame(id3tag, txxxArtworkURL)
		t.Source = getTXXXFrame(id3tag, txxxSource)
		t.SourceID = getTXXXFrame(id3tag, txxxSourceID)
		return t, nil
	}
}

func getTXXXFrame(tag *id3v2.Tag, description string) string {
	for _, frame := range tag.GetFrames("TXXX") {
		if txxx, ok := frame.(id3v2.UserDefinedTextFrame); ok && txxx.Description == description {
			return txxx.Value
		}
	}
	return ""
}

func checkRIFF(r io.ReadSeeker) error {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return err
	}
	hdr := make([]byte, riffHeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return fmt.Errorf("%w: %w", ErrNotWAV, err)
	}
	if string(hdr[:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return ErrNotWAV
	}
	return nil
}
