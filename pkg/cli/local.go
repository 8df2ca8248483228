package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/platinummonkey/apievolve/pkg/apimodel"
	"github.com/platinummonkey/apievolve/pkg/revision"
	"github.com/platinummonkey/apievolve/pkg/schema"
	"github.com/platinummonkey/apievolve/pkg/service"
	"github.com/platinummonkey/apievolve/pkg/storage"
)

// isDocument reports whether path names a definition document
func isDocument(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// loadHistory compiles the provider revisions found in dir. Every document
// must describe the same API; they are chained in revision order.
func loadHistory(dir string) (*revision.History, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read history directory: %w", err)
	}

	var (
		name    string
		records []*storage.Record
	)
	for _, entry := range entries {
		if entry.IsDir() || !isDocument(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", path, err)
		}
		doc, err := schema.Parse(content)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if doc.Side == "" {
			doc.Side = apimodel.SideProvider.String()
		}
		if doc.Side != apimodel.SideProvider.String() {
			return nil, fmt.Errorf("%s: %w: expected a provider definition, got %s", path, service.ErrWrongSide, doc.Side)
		}
		if name == "" {
			name = doc.API
		} else if doc.API != name {
			return nil, fmt.Errorf("%s: %w: document describes %s, not %s", path, service.ErrHistoryMismatch, doc.API, name)
		}
		body, err := schema.Marshal(doc)
		if err != nil {
			return nil, err
		}
		records = append(records, storage.NewRecord(doc.API, doc.Revision, string(body)))
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no definition documents found in %s", dir)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Revision < records[j].Revision
	})
	return service.CompileHistory(name, records)
}
