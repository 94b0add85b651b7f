package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	ErrInvalidKey = errors.New("storage key escapes media root")
	ErrTooLarge   = errors.New("upload exceeds size limit")
)

// LocalFS stores uploads under Root, addressed by slash-separated keys.
type LocalFS struct {
	Root string
}

// TranscriptKey names a new upload: transcriber/<owner>/<uuid>-<file name>.
func TranscriptKey(ownerID, fileName string) string {
	name := filepath.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	return "transcriber/" + ownerID + "/" + uuid.NewString() + "-" + name
}

func (l LocalFS) abs(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	return filepath.Join(l.Root, clean), nil
}

// Put writes r under key, stopping with an error once more than maxBytes
// have been read. It returns the bytes written and the sniffed MIME type.
func (l LocalFS) Put(key string, r io.Reader, maxBytes int64) (int64, string, error) {
	abs, err := l.abs(key)
	if err != nil {
		return 0, "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return 0, "", err
	}

	// Sniff from the head of the stream, then replay it into the file.
	head := make([]byte, 3072)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return 0, "", fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	mime := mimetype.Detect(head).String()

	f, err := os.Create(abs)
	if err != nil {
		return 0, "", err
	}
	src := io.MultiReader(bytes.NewReader(head), r)
	if maxBytes > 0 {
		src = io.LimitReader(src, maxBytes+1)
	}
	written, err := io.Copy(f, src)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && maxBytes > 0 && written > maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		os.Remove(abs)
		return 0, "", err
	}
	return written, mime, nil
}

func (l LocalFS) Path(key string) string {
	abs, err := l.abs(key)
	if err != nil {
		return ""
	}
	return abs
}

func (l LocalFS) Exists(key string) bool {
	abs, err := l.abs(key)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && !info.IsDir()
}

// Remove deletes the stored file; a missing file is not an error.
func (l LocalFS) Remove(key string) error {
	abs, err := l.abs(key)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
