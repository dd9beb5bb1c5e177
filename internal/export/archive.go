package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/szaher/mdtboard/internal/discussion"
)

// ErrRecordNotFound means the owner has no archived record with that id.
var ErrRecordNotFound = errors.New("archived record not found")

// Entry summarizes one archived record for listings.
type Entry struct {
	ID       string `json:"id"`
	State    string `json:"state"`
	Rounds   int    `json:"rounds"`
	Preview  string `json:"preview"`
	Path     string `json:"path"`
	Finished string `json:"finished,omitempty"`
}

// Archive reads back the JSON records a FileExporter wrote. All lookups are
// owner-scoped: an owner can only see their own records.
type Archive struct {
	dir string
}

// NewArchive opens the archive rooted at the exporter's directory.
func NewArchive(dir string) *Archive {
	return &Archive{dir: dir}
}

// List returns the owner's archived records, newest id first.
func (a *Archive) List(owner string) ([]Entry, error) {
	ownerDir := filepath.Join(a.dir, sanitize(owner))
	names, err := os.ReadDir(ownerDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	for _, de := range names {
		name := de.Name()
		if de.IsDir() || !strings.HasPrefix(name, "discussion_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, "discussion_"), ".json")
		rec, err := a.Load(owner, id)
		if err != nil {
			continue
		}
		e := Entry{
			ID:      rec.ID,
			State:   string(rec.State),
			Rounds:  rec.RoundsCompleted,
			Preview: preview(rec.CaseText, 80),
			Path:    filepath.Join(ownerDir, name),
		}
		if !rec.FinishedAt.IsZero() {
			e.Finished = rec.FinishedAt.Format("2006-01-02 15:04:05")
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID > entries[j].ID })
	return entries, nil
}

// Load reads one archived record back.
func (a *Archive) Load(owner, id string) (*discussion.Record, error) {
	path := filepath.Join(a.dir, sanitize(owner), fmt.Sprintf("discussion_%s.json", sanitize(id)))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
		}
		return nil, err
	}
	var rec discussion.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse archived record %s: %w", path, err)
	}
	return &rec, nil
}

// Delete removes every rendering of one archived record.
func (a *Archive) Delete(owner, id string) error {
	ownerDir := filepath.Join(a.dir, sanitize(owner))
	removed := false
	for _, ext := range []string{"json", "md"} {
		path := filepath.Join(ownerDir, fmt.Sprintf("discussion_%s.%s", sanitize(id), ext))
		err := os.Remove(path)
		if err == nil {
			removed = true
			continue
		}
		if !os.IsNotExist(err) {
			return err
		}
	}
	if !removed {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return nil
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if runes := []rune(s); len(runes) > n {
		return string(runes[:n]) + "..."
	}
	return s
}
