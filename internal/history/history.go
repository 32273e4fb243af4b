// Package history enumerates a backend's outputs directory into the
// paginated wire shape of GET /history, optionally joined against a
// sidecar sqlite metadata store keyed by filename.
package history

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"fooocus-orchestrator/internal/config"
	"fooocus-orchestrator/pkg/types"
)

var (
	filenameTimestamp = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2})`)
	dateDirName       = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

const filenameTimestampLayout = "2006-01-02_15-04-05"

type Reader struct {
	cfg    config.HistoryConfig
	logger *zap.Logger
}

func NewReader(cfg config.HistoryConfig, logger *zap.Logger) *Reader {
	return &Reader{cfg: cfg, logger: logger}
}

// List walks the outputs directory and returns a page of entries
// sorted strictly newest-first, capped at max(1, limit) starting at
// offset. A missing or unreadable sidecar database degrades every
// entry's Metadata to nil rather than failing the call.
func (r *Reader) List(limit, offset int) (types.HistoryPage, error) {
	if limit < 1 {
		limit = 1
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := r.scanAll()
	if err != nil {
		return types.HistoryPage{}, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedEpochSeconds > entries[j].CreatedEpochSeconds
	})

	meta := r.loadMetadata()
	for i := range entries {
		if m, ok := meta[entries[i].Filename]; ok {
			entries[i].Metadata = m
		}
	}

	total := len(entries)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	page := append([]types.HistoryEntry{}, entries[start:end]...)

	totalPages := (total + limit - 1) / limit
	if totalPages == 0 {
		totalPages = 1
	}

	return types.HistoryPage{
		Items:      page,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
		Page:       start/limit + 1,
		TotalPages: totalPages,
	}, nil
}

func (r *Reader) scanAll() ([]types.HistoryEntry, error) {
	top, err := os.ReadDir(r.cfg.OutputsDir)
	if err != nil {
		return nil, err
	}

	var entries []types.HistoryEntry
	for _, e := range top {
		if e.IsDir() {
			if !dateDirName.MatchString(e.Name()) {
				continue
			}
			sub, err := os.ReadDir(filepath.Join(r.cfg.OutputsDir, e.Name()))
			if err != nil {
				r.logger.Warn("failed to read output subdirectory", zap.String("dir", e.Name()), zap.Error(err))
				continue
			}
			for _, f := range sub {
				if f.IsDir() {
					continue
				}
				entries = append(entries, r.buildEntry(e.Name(), f))
			}
			continue
		}
		// The sidecar database may sit in the outputs root; it is not an output.
		if r.cfg.SidecarDBPath != "" && filepath.Join(r.cfg.OutputsDir, e.Name()) == filepath.Clean(r.cfg.SidecarDBPath) {
			continue
		}
		entries = append(entries, r.buildEntry("", e))
	}

	return entries, nil
}

func (r *Reader) buildEntry(subdir string, f os.DirEntry) types.HistoryEntry {
	relPath := f.Name()
	if subdir != "" {
		relPath = filepath.Join(subdir, f.Name())
	}

	created := parseTimestamp(f.Name())
	if created == 0 {
		if info, err := f.Info(); err == nil {
			created = info.ModTime().Unix()
		}
	}

	return types.HistoryEntry{
		Filename:            f.Name(),
		RelativePath:        relPath,
		CreatedEpochSeconds: created,
	}
}

func parseTimestamp(name string) int64 {
	match := filenameTimestamp.FindStringSubmatch(name)
	if match == nil {
		return 0
	}
	t, err := time.ParseInLocation(filenameTimestampLayout, match[1], time.Local)
	if err != nil {
		return 0
	}
	return t.Unix()
}

func (r *Reader) loadMetadata() map[string]map[string]interface{} {
	result := make(map[string]map[string]interface{})

	if r.cfg.SidecarDBPath == "" {
		return result
	}
	if _, err := os.Stat(r.cfg.SidecarDBPath); err != nil {
		return result
	}

	db, err := sql.Open("sqlite3", r.cfg.SidecarDBPath)
	if err != nil {
		r.logger.Warn("failed to open history sidecar db", zap.Error(err))
		return result
	}
	defer db.Close()

	rows, err := db.Query("SELECT filename, metadata FROM history_metadata")
	if err != nil {
		r.logger.Warn("failed to query history sidecar db", zap.Error(err))
		return result
	}
	defer rows.Close()

	for rows.Next() {
		var filename, raw string
		if err := rows.Scan(&filename, &raw); err != nil {
			continue
		}
		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			continue
		}
		result[filename] = parsed
	}

	return result
}
