package library

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

var (
	ErrOutsideRoot  = errors.New("path is outside the download directory")
	ErrFileNotFound = errors.New("file not found")
	ErrInvalidName  = errors.New("invalid file name")
)

// PartialSuffix marks files that are still being written
const PartialSuffix = ".part"

const maxTitleLength = 180

var (
	reservedChars = regexp.MustCompile(`[\\/*?:"<>|\x00-\x1f]`)
	whitespace    = regexp.MustCompile(`\s+`)
	idUnsafe      = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
)

// Entry is a finished file found in the download directory
type Entry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// Library owns the download directory: it derives safe output paths and
// lists or removes the files stored there.
type Library struct {
	mu   sync.Mutex
	root string
}

// New creates the download directory if needed and returns a Library rooted at it
func New(root string) (*Library, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve download directory: %w", err)
	}

	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	return &Library{root: abs}, nil
}

// Root returns the absolute download directory
func (l *Library) Root() string {
	return l.root
}

// SanitizeTitle turns an untrusted title into a string usable as a file name.
// Reserved characters and whitespace become underscores; an unusable result
// yields fallback.
func SanitizeTitle(title, fallback string) string {
	s := strings.TrimSpace(title)
	s = reservedChars.ReplaceAllString(s, "_")
	s = whitespace.ReplaceAllString(s, "_")
	s = strings.TrimLeft(s, "._")

	for len(s) > maxTitleLength {
		_, size := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-size]
	}

	s = strings.TrimRight(s, "._")
	if s == "" {
		return fallback
	}
	return s
}

// PathFor joins name onto the root and guarantees the result stays inside it
func (l *Library) PathFor(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", ErrInvalidName
	}

	p := filepath.Join(l.root, name)
	if !l.Contains(p) {
		return "", ErrOutsideRoot
	}
	return p, nil
}

// Contains reports whether p resolves to a location strictly inside the root
func (l *Library) Contains(p string) bool {
	abs, err := filepath.Abs(p)
	if err != nil {
		return false
	}

	rel, err := filepath.Rel(l.root, abs)
	if err != nil {
		return false
	}

	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// List scans the download directory and returns finished files sorted by
// modification time, newest first. Partial and hidden files are skipped.
func (l *Library) List() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	dirEntries, err := os.ReadDir(l.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read download directory: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, dirEntry := range dirEntries {
		if dirEntry.IsDir() {
			continue
		}

		name := dirEntry.Name()
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, PartialSuffix) {
			continue
		}

		info, err := dirEntry.Info()
		if err != nil {
			continue
		}

		entries = append(entries, Entry{
			Name:    name,
			Path:    filepath.Join(l.root, name),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ModTime.After(entries[j].ModTime)
	})

	return entries, nil
}

// Stat returns the entry for a path inside the root
func (l *Library) Stat(p string) (Entry, error) {
	if !l.Contains(p) {
		return Entry{}, ErrOutsideRoot
	}

	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, ErrFileNotFound
		}
		return Entry{}, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return Entry{}, ErrFileNotFound
	}

	abs, _ := filepath.Abs(p)
	return Entry{
		Name:    info.Name(),
		Path:    abs,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Remove deletes a file inside the root
func (l *Library) Remove(p string) error {
	if !l.Contains(p) {
		return ErrOutsideRoot
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return ErrFileNotFound
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// EntryID derives a stable identifier for a file that is not tracked by any
// job. Names that had to be rewritten carry a hash of the original after a
// '~', a character no rewritten or already safe name contains, so distinct
// names never share an ID.
func EntryID(name string) string {
	safe := idUnsafe.ReplaceAllString(name, "_")
	if safe == name {
		return "file_" + safe
	}
	sum := sha256.Sum256([]byte(name))
	return "file_" + safe + "~" + hex.EncodeToString(sum[:4])
}
