// Package docstore reads and writes the per-character document bundle:
//
//	<profiles>/<character id>/
//	    profile.md
//	    timeline.md
//	    docs/*.md|*.txt
//	    docs/updates/<timestamp>.md
//	    prompt/{system,generic,short,reviewer}.md
//
// Shared defaults live in the docs directory.
package docstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/suPer8Hu/rpg-chat/internal/retrieval"
)

// DefaultGuidelinesFile is the fallback guideline prompt in the docs directory.
const DefaultGuidelinesFile = "General_Default_Char_Prompt_v3.md"

type Store struct {
	profilesDir string
	docsDir     string

	mu         sync.Mutex
	guidelines *string // cached DefaultGuidelinesFile content, nil when unread
}

func New(profilesDir, docsDir string) *Store {
	return &Store{profilesDir: profilesDir, docsDir: docsDir}
}

func (s *Store) root(characterID string) string {
	return filepath.Join(s.profilesDir, filepath.Base(characterID))
}

func readIfExists(p string) (string, bool) {
	b, err := os.ReadFile(p)
	if err != nil {
		return "", false
	}
	return string(b), true
}

// InitBundle creates the bundle directories and seeds prompt/system.md and
// profile.md. Existing files are left alone.
func (s *Store) InitBundle(characterID, name, systemPrompt string) error {
	root := s.root(characterID)
	for _, d := range []string{"docs", "prompt"} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return err
		}
	}
	if err := writeNew(filepath.Join(root, "prompt", "system.md"), systemPrompt); err != nil {
		return err
	}
	profile := fmt.Sprintf("# %s\n", name)
	if strings.TrimSpace(systemPrompt) != "" {
		profile += "\n" + strings.TrimSpace(systemPrompt) + "\n"
	}
	return writeNew(filepath.Join(root, "profile.md"), profile)
}

func writeNew(p, content string) error {
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *Store) Profile(characterID string) (string, bool) {
	return readIfExists(filepath.Join(s.root(characterID), "profile.md"))
}

func (s *Store) Timeline(characterID string) (string, bool) {
	return readIfExists(filepath.Join(s.root(characterID), "timeline.md"))
}

// prompt reads prompt/<name>.md, falling back to prompt/<name>/index.md.
func (s *Store) prompt(characterID, name string) string {
	root := s.root(characterID)
	if txt, ok := readIfExists(filepath.Join(root, "prompt", name+".md")); ok {
		return txt
	}
	txt, _ := readIfExists(filepath.Join(root, "prompt", name, "index.md"))
	return txt
}

// GenericGuidelines returns the character's generic prompt, else the shared
// default from the docs directory.
func (s *Store) GenericGuidelines(characterID string) string {
	if characterID != "" {
		if txt := s.prompt(characterID, "generic"); strings.TrimSpace(txt) != "" {
			return txt
		}
	}
	return s.defaultGuidelines()
}

func (s *Store) defaultGuidelines() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.guidelines != nil {
		return *s.guidelines
	}
	txt, _ := readIfExists(filepath.Join(s.docsDir, DefaultGuidelinesFile))
	s.guidelines = &txt
	return txt
}

func (s *Store) forgetGuidelines() {
	s.mu.Lock()
	s.guidelines = nil
	s.mu.Unlock()
}

func (s *Store) ShortPrompt(characterID string) string {
	if characterID == "" {
		return ""
	}
	return s.prompt(characterID, "short")
}

// ReviewerPrompt implements reviewer.PromptSource.
func (s *Store) ReviewerPrompt(characterID string) string {
	return s.prompt(characterID, "reviewer")
}

var reDocExt = regexp.MustCompile(`(?i)\.(md|txt)$`)

type docFile struct {
	name string
	text string
}

func (s *Store) docFiles(characterID string) ([]docFile, error) {
	dir := filepath.Join(s.root(characterID), "docs")
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []docFile
	for _, e := range entries {
		if e.IsDir() || !reDocExt.MatchString(e.Name()) {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, docFile{name: e.Name(), text: string(b)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

// Texts returns the profile, timeline and documents as plain strings, for the
// facts extractor.
func (s *Store) Texts(characterID string) ([]string, error) {
	var out []string
	if p, ok := s.Profile(characterID); ok {
		out = append(out, p)
	}
	if t, ok := s.Timeline(characterID); ok {
		out = append(out, t)
	}
	files, err := s.docFiles(characterID)
	for _, f := range files {
		out = append(out, f.text)
	}
	return out, err
}

// RAGDocs returns the bundle as retrieval documents with ids "profile",
// "timeline" and "doc:<file>". Blank files are skipped.
func (s *Store) RAGDocs(characterID string) ([]retrieval.Doc, error) {
	var out []retrieval.Doc
	push := func(id, title, text string) {
		if strings.TrimSpace(text) == "" {
			return
		}
		out = append(out, retrieval.Doc{ID: id, Source: title, Title: title, Text: text})
	}
	if p, ok := s.Profile(characterID); ok {
		push("profile", "profile", p)
	}
	if t, ok := s.Timeline(characterID); ok {
		push("timeline", "timeline", t)
	}
	files, err := s.docFiles(characterID)
	for _, f := range files {
		push("doc:"+f.name, f.name, f.text)
	}
	return out, err
}

// ProfileDocName is the file /addcharacter writes under docs/.
func ProfileDocName(name string) string {
	return strings.Join(strings.Fields(name), "_") + "_profile.md"
}

// WriteDoc writes docs/<filename>, replacing any existing file.
func (s *Store) WriteDoc(characterID, filename, content string) (string, error) {
	dir := filepath.Join(s.root(characterID), "docs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	p := filepath.Join(dir, filepath.Base(filename))
	return p, os.WriteFile(p, []byte(content), 0o644)
}

// AppendUpdate writes a timestamped file under docs/updates with the note
// quoted above the excerpt.
func (s *Store) AppendUpdate(characterID, note, excerpt string, at time.Time) (string, error) {
	dir := filepath.Join(s.root(characterID), "docs", "updates")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	stamp := strings.NewReplacer(":", "-", ".", "-").Replace(at.UTC().Format("2006-01-02T15:04:05.000Z"))
	var body string
	if note != "" {
		body = "> " + note + "\n\n"
	}
	p := filepath.Join(dir, stamp+".md")
	return p, os.WriteFile(p, []byte(body+excerpt), 0o644)
}

// RemoveBundle deletes the character's directory.
func (s *Store) RemoveBundle(characterID string) error {
	return os.RemoveAll(s.root(characterID))
}
