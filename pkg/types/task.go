package types

import "time"

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskStatusPending  TaskStatus = "pending"
	TaskStatusRunning  TaskStatus = "running"
	TaskStatusFinished TaskStatus = "finished"
	TaskStatusError    TaskStatus = "error"
	TaskStatusCanceled TaskStatus = "canceled"
)

// GenerateRequest is the structured request body for POST /generate.
// Field names mirror the Fooocus-style UI form this backend fronts;
// see internal/argsvector for how this maps onto the worker's
// positional contract.
type GenerateRequest struct {
	Prompt                string          `json:"prompt"`
	NegativePrompt        string          `json:"negative_prompt"`
	StyleSelections       []string        `json:"style_selections"`
	PerformanceSelection  string          `json:"performance_selection"`
	AspectRatiosSelection string          `json:"aspect_ratios_selection"`
	ImageNumber           int             `json:"image_number"`
	OutputFormat          string          `json:"output_format"`
	ImageSeed             int64           `json:"image_seed"`
	SeedRandom            bool            `json:"seed_random"`
	Sharpness             float64         `json:"sharpness"`
	GuidanceScale         float64         `json:"guidance_scale"`
	BaseModel             string          `json:"base_model"`
	RefinerModel          string          `json:"refiner_model"`
	RefinerSwitch         float64         `json:"refiner_switch"`
	Loras                 []LoraSelection `json:"loras"`
	Sampler               string          `json:"sampler_name"`
	Scheduler             string          `json:"scheduler_name"`
	VAE                   string          `json:"vae_name"`
	ClipSkip              int             `json:"clip_skip"`
	AdaptiveCFG            float64        `json:"adaptive_cfg"`
	OverwriteStep          int            `json:"overwrite_step"`
	OverwriteSwitch        int            `json:"overwrite_switch"`
	OverwriteWidth         int            `json:"overwrite_width"`
	OverwriteHeight        int            `json:"overwrite_height"`
	DisableSeedIncrement   bool           `json:"disable_seed_increment"`
	ADMScalerPositive      float64        `json:"adm_scaler_positive"`
	ADMScalerNegative      float64        `json:"adm_scaler_negative"`
	ADMScalerEnd           float64        `json:"adm_scaler_end"`
	RefinerSwapMethod      string         `json:"refiner_swap_method"`
	ControlNetSoftness     float64        `json:"controlnet_softness"`
	FreeUEnabled           bool           `json:"freeu_enabled"`
	FreeUB1                float64        `json:"freeu_b1"`
	FreeUB2                float64        `json:"freeu_b2"`
	FreeUS1                float64        `json:"freeu_s1"`
	FreeUS2                float64        `json:"freeu_s2"`
	SaveMetadata           bool           `json:"save_metadata"`
	MetadataScheme         string         `json:"metadata_scheme"`
}

// LoraSelection is one entry of the (up to 5-slot) LoRA list.
type LoraSelection struct {
	Enabled bool    `json:"enabled"`
	Name    string  `json:"name"`
	Weight  float64 `json:"weight"`
}

// GenerateResponse is the wire shape of POST /generate's reply.
type GenerateResponse struct {
	TaskID      string         `json:"task_id"`
	Status      string         `json:"status"`
	GPUs        []TaskGPUSplit `json:"gpus,omitempty"`
	TotalImages int            `json:"total_images,omitempty"`
	Error       string         `json:"error,omitempty"`
}

type TaskGPUSplit struct {
	Device int `json:"device"`
	Images int `json:"images"`
}

// SubTask is the per-GPU portion of a Task, exclusively owned by its
// parent.
type SubTask struct {
	ParentID   string
	Index      int
	SubID      string
	Slot       GPUSlot
	ImageCount int
	Percentage int
	StatusText string
	Preview    *string
	Results    []string
	Finished   bool
	Error      string
}

// Task is the Task Coordinator's in-memory record for one /generate
// request. It is never persisted.
type Task struct {
	ID          string
	TotalImages int
	CreatedAt   time.Time
	Status      TaskStatus
	Percentage  int
	StatusText  string
	Preview     *string
	Results     []string
	Assignments []GPUAssignment
	SubTasks    []*SubTask
	Errors      []string
}

// TaskStatusResponse is the wire shape of GET /status/{taskId}.
type TaskStatusResponse struct {
	TaskID     string   `json:"task_id"`
	Status     string   `json:"status"`
	Percentage int      `json:"percentage"`
	StatusText string   `json:"status_text"`
	Preview    *string  `json:"preview"`
	Results    []string `json:"results"`
	Errors     []string `json:"errors,omitempty"`
}

// StopResponse is the wire shape of POST /stop.
type StopResponse struct {
	Requested int  `json:"requested"`
	Success   bool `json:"success"`
}
