package source

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/kbforge/kbindexd/internal/catalog"
)

// FileConnector reads a local text file. Content that is not valid
// UTF-8 is decoded as Latin-1 rather than dropped.
type FileConnector struct {
	logger *slog.Logger
}

var _ Connector = (*FileConnector)(nil)

func NewFileConnector(logger *slog.Logger) *FileConnector {
	return &FileConnector{logger: logger}
}

func (c *FileConnector) Kind() catalog.Kind { return catalog.KindFile }

func (c *FileConnector) Load(ctx context.Context, ds catalog.DataSource) []Document {
	path := FilePath(ds.URI)

	data, err := os.ReadFile(path)
	if err != nil {
		c.logger.Warn("file source unreadable",
			slog.String("tenant_id", ds.TenantID),
			slog.String("source_uri", ds.URI),
			slog.String("error", err.Error()))
		return nil
	}

	content := decodeText(data)
	if strings.TrimSpace(content) == "" {
		return nil
	}

	return []Document{{
		Content: content,
		Metadata: map[string]any{
			"file_name": filepath.Base(path),
			"extension": strings.TrimPrefix(filepath.Ext(path), "."),
		},
	}}
}

// FilePath strips the file:// scheme from a source URI, leaving plain
// paths untouched.
func FilePath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}

// decodeText returns data as a string, falling back to a Latin-1
// interpretation (one rune per byte) when it is not valid UTF-8.
func decodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}
