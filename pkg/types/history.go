package types

// HistoryEntry describes one past output, derived from a filesystem
// scan optionally joined against a sidecar key→JSON metadata store.
type HistoryEntry struct {
	Filename           string                 `json:"filename"`
	RelativePath       string                 `json:"relative_path"`
	CreatedEpochSeconds int64                 `json:"created_epoch_seconds"`
	Metadata            map[string]interface{} `json:"metadata"`
}

// HistoryPage is the wire shape of GET /history.
type HistoryPage struct {
	Items      []HistoryEntry `json:"items"`
	Total      int            `json:"total"`
	Limit      int            `json:"limit"`
	Offset     int            `json:"offset"`
	Page       int            `json:"page"`
	TotalPages int            `json:"total_pages"`
}
