// Package usage records approximate token counts per turn as JSON lines,
// one file per session.
package usage

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Entry struct {
	TS           int64  `json:"ts"`
	SessionID    string `json:"sessionId"`
	Model        string `json:"model"`
	Role         string `json:"role"`
	TextLen      int    `json:"textLen"`
	ApproxTokens int    `json:"approxTokens"`
}

// ApproxTokens assumes about four characters per token, never less than one.
func ApproxTokens(text string) int {
	return max(1, int(math.Round(float64(len(text))/4)))
}

type Recorder struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

func New(dir string) *Recorder {
	return &Recorder{dir: dir, now: time.Now}
}

func (r *Recorder) Path(sessionID string) string {
	return filepath.Join(r.dir, filepath.Base(sessionID)+".jsonl")
}

func (r *Recorder) Record(sessionID, model, role, text string) error {
	e := Entry{
		TS:           r.now().UnixMilli(),
		SessionID:    sessionID,
		Model:        model,
		Role:         role,
		TextLen:      len(text),
		ApproxTokens: ApproxTokens(text),
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(r.Path(sessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
