/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for the dashboard API. These decouple the on-disk
  table/ledger model from the external contract: tables become label/value
  series, ledger entries become task status objects, decimals become
  floats at the edge.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

// DeviceDTO represents a registered meter in API responses.
type DeviceDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	RegisteredAt string `json:"registered_at"`
}

// RegisterDeviceRequest is the request to register a meter.
type RegisterDeviceRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SeriesDTO is one device's row from an artifact table. Values align
// with Labels; a null value means the table has no cell there.
type SeriesDTO struct {
	Device string     `json:"device"`
	Labels []string   `json:"labels"`
	Values []*float64 `json:"values"`
}

// TaskStatusDTO is the current status of one pipeline task for a date.
type TaskStatusDTO struct {
	Task      string `json:"task"`
	Completed bool   `json:"completed"`
	Detail    string `json:"detail,omitempty"`
}

// CompletionRecordDTO is one raw ledger entry.
type CompletionRecordDTO struct {
	Task       string `json:"task"`
	RunKey     string `json:"run_key"`
	Success    bool   `json:"success"`
	Detail     string `json:"detail,omitempty"`
	RecordedAt string `json:"recorded_at"`
}

// PipelineStatusDTO summarizes a run date: latest status per task plus
// the full event history.
type PipelineStatusDTO struct {
	RunKey  string                `json:"run_key"`
	Tasks   []TaskStatusDTO       `json:"tasks"`
	History []CompletionRecordDTO `json:"history"`
}

// RunRequest triggers a pipeline run. An empty date means yesterday.
type RunRequest struct {
	Date string `json:"date,omitempty"`
}

// RunResponse reports the outcome of a triggered run.
type RunResponse struct {
	RunKey string            `json:"run_key"`
	Status PipelineStatusDTO `json:"status"`
	Error  string            `json:"error,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}
