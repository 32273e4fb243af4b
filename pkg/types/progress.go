package types

// ProgressUpdate is the message shape published over the WebSocket
// progress stream. Exactly one update per task has
// Finished == true, and it is always the last update published for
// that task.
type ProgressUpdate struct {
	Type       string   `json:"type"`
	TaskID     string   `json:"task_id"`
	Percentage int      `json:"percentage"`
	StatusText string   `json:"statusText"`
	Finished   bool     `json:"finished"`
	Preview    *string  `json:"preview"`
	Results    []string `json:"results"`
}
