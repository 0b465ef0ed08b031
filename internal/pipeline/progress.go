package pipeline

import "github.com/On-Jun9/MetaPipe/pkg/types"

// Progress event types.
const (
	EventStatus   = "status"
	EventProgress = "progress"
	EventAction   = "action"
	EventComplete = "complete"
	EventError    = "error"
)

type ProgressCallback func(update ProgressUpdate)

type ProgressUpdate struct {
	Type     string               `json:"type"`
	Message  string               `json:"message,omitempty"`
	Current  int                  `json:"current,omitempty"`
	Total    int                  `json:"total,omitempty"`
	Filename string               `json:"filename,omitempty"`
	Result   *types.ActionResult  `json:"result,omitempty"`
	Summary  *types.IngestSummary `json:"summary,omitempty"`
	Error    string               `json:"error,omitempty"`
}
