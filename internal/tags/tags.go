// Package tags reads track identity from audio file metadata.
package tags

import (
	"errors"
	"fmt"
	"os"

	"github.com/dhowden/tag"
)

// ErrUnreadable is returned when a file has no metadata the reader understands.
var ErrUnreadable = errors.New("unreadable tags")

// Tags is the subset of audio metadata used to identify a track.
type Tags struct {
	Title  string
	Artist string
	Album  string
}

// Reader extracts Tags from the file at path.
type Reader interface {
	Read(path string) (Tags, error)
}

// FileReader reads ID3, MP4, FLAC and OGG metadata.
type FileReader struct{}

func NewFileReader() *FileReader {
	return &FileReader{}
}

func (FileReader) Read(path string) (Tags, error) {
	f, err := os.Open(path)
	if err != nil {
		return Tags{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return Tags{}, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}

	return Tags{
		Title:  m.Title(),
		Artist: m.Artist(),
		Album:  m.Album(),
	}, nil
}
