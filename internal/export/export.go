// Package export persists finished discussion records: JSON and Markdown
// files on disk for operators, and optionally Postgres for long-term
// archival.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/szaher/mdtboard/internal/discussion"
)

// Format selects an export rendering.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates a format string from a CLI flag or request.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatMarkdown, Format("md"):
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

func (f Format) ext() string {
	if f == FormatMarkdown {
		return "md"
	}
	return "json"
}

// Exporter writes one rendering of a record and reports the path.
type Exporter interface {
	Export(rec *discussion.Record, format Format) (string, error)
}

// FileExporter writes records under dir/<owner>/discussion_<id>.<ext>.
// Its Save method renders every configured format, which makes it usable
// as the engine's archiver.
type FileExporter struct {
	dir     string
	formats []Format
	logger  *slog.Logger
}

// NewFileExporter builds an exporter rooted at dir. With no formats given
// it writes both JSON and Markdown.
func NewFileExporter(dir string, logger *slog.Logger, formats ...Format) *FileExporter {
	if logger == nil {
		logger = slog.Default()
	}
	if len(formats) == 0 {
		formats = []Format{FormatJSON, FormatMarkdown}
	}
	return &FileExporter{dir: dir, formats: formats, logger: logger}
}

// Export writes one rendering of the record and returns its path.
func (e *FileExporter) Export(rec *discussion.Record, format Format) (string, error) {
	ownerDir := filepath.Join(e.dir, sanitize(rec.OwnerID))
	if err := os.MkdirAll(ownerDir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	var data []byte
	var err error
	switch format {
	case FormatJSON:
		data, err = json.MarshalIndent(rec, "", "  ")
	case FormatMarkdown:
		data = []byte(renderMarkdown(rec))
	default:
		return "", fmt.Errorf("unknown export format %q", format)
	}
	if err != nil {
		return "", fmt.Errorf("render record: %w", err)
	}

	path := filepath.Join(ownerDir, fmt.Sprintf("discussion_%s.%s", rec.ID, format.ext()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

// Save renders every configured format. It satisfies the engine's Archiver.
func (e *FileExporter) Save(ctx context.Context, rec *discussion.Record) error {
	for _, format := range e.formats {
		path, err := e.Export(rec, format)
		if err != nil {
			return err
		}
		e.logger.Info("discussion exported", "discussion", rec.ID, "path", path)
	}
	return nil
}

// sanitize keeps owner ids from escaping the export root.
func sanitize(owner string) string {
	if owner == "" || owner == "." || owner == ".." {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, owner)
}
