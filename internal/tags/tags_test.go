package tags

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// id3v23 builds a minimal ID3v2.3 tag holding ISO-8859-1 text frames.
func id3v23(frames map[string]string) []byte {
	var body bytes.Buffer
	for _, id := range []string{"TIT2", "TPE1", "TALB"} {
		text, ok := frames[id]
		if !ok {
			continue
		}
		size := len(text) + 1
		body.WriteString(id)
		body.Write([]byte{byte(size >> 24), byte(size >> 16), byte(size >> 8), byte(size)})
		body.Write([]byte{0, 0}) // flags
		body.WriteByte(0)        // encoding
		body.WriteString(text)
	}

	n := body.Len()
	var out bytes.Buffer
	out.WriteString("ID3")
	out.Write([]byte{3, 0, 0})
	out.Write([]byte{byte(n >> 21 & 0x7f), byte(n >> 14 & 0x7f), byte(n >> 7 & 0x7f), byte(n & 0x7f)})
	out.Write(body.Bytes())
	return out.Bytes()
}

func TestFileReaderID3(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.mp3")
	data := id3v23(map[string]string{"TIT2": "Hello", "TPE1": "Someone", "TALB": "Greetings"})
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := NewFileReader().Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	want := Tags{Title: "Hello", Artist: "Someone", Album: "Greetings"}
	if got != want {
		t.Errorf("Read = %+v, want %+v", got, want)
	}
}

func TestFileReaderUnreadable(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(plain, []byte("not an audio file at all"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{plain, filepath.Join(dir, "missing.mp3")} {
		if _, err := NewFileReader().Read(path); !errors.Is(err, ErrUnreadable) {
			t.Errorf("Read(%s) error = %v, want ErrUnreadable", path, err)
		}
	}
}
