// Package transcript keeps the human-readable, append-only log of a session:
// one markdown file per session id.
package transcript

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

type Writer struct {
	dir string
	mu  sync.Mutex
}

func New(dir string) *Writer {
	return &Writer{dir: dir}
}

func (w *Writer) Path(sessionID string) string {
	return filepath.Join(w.dir, filepath.Base(sessionID)+".md")
}

// Append writes line followed by a newline.
func (w *Writer) Append(sessionID, line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.Path(sessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Tail returns at most the last n bytes. A missing transcript is empty.
func (w *Writer) Tail(sessionID string, n int64) (string, error) {
	f, err := os.Open(w.Path(sessionID))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return "", err
	}
	if off := st.Size() - n; off > 0 {
		if _, err := f.Seek(off, io.SeekStart); err != nil {
			return "", err
		}
	}
	b, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Read returns the whole transcript.
func (w *Writer) Read(sessionID string) (string, error) {
	b, err := os.ReadFile(w.Path(sessionID))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	return string(b), err
}
