/*
handlers.go - HTTP API handlers for the rollup service

PURPOSE:
  Exposes the device registry, the four persisted artifacts, and the
  pipeline's completion state over REST. Handles HTTP request/response
  and JSON serialization; all rollup logic stays in the rollup package.

ENDPOINTS:
  Devices:
    GET    /api/devices                              List meters
    POST   /api/devices                              Register meter
    GET    /api/devices/{id}                         Meter details

  Artifacts (per meter):
    GET    /api/devices/{id}/readings/daily?date=    Day's slot readings
    GET    /api/devices/{id}/readings/monthly?month= Month's daily readings
    GET    /api/devices/{id}/consumption/daily?date= Day's slot deltas
    GET    /api/devices/{id}/consumption/monthly?month= Month's daily totals

  Pipeline:
    GET    /api/pipeline/status?date=                Task status + history
    POST   /api/pipeline/run                         Trigger a run

  Feed:
    GET    /api/feed?date=                           Raw vendor payload

TRUST RULE:
  An artifact is served only when the completion ledger shows the
  producing task succeeded. A file on disk without a success record is
  treated as absent; "file exists" alone is never a success signal.

ERROR HANDLING:
  - 400: invalid input (bad date, bad body)
  - 404: unknown device, or artifact not (yet) published
  - 409: device id already registered
  - 500: storage/ledger errors
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gridline/meter-rollup/rollup"
	"github.com/gridline/meter-rollup/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Registry *sqlite.Store
	Ledger   rollup.CompletionLedger
	Pipeline *rollup.Pipeline
	Source   rollup.ReadingSource
	Root     string
}

// NewHandler creates a handler over the registry, ledger and pipeline.
func NewHandler(registry *sqlite.Store, pipeline *rollup.Pipeline) *Handler {
	return &Handler{
		Registry: registry,
		Ledger:   pipeline.Ledger,
		Pipeline: pipeline,
		Source:   pipeline.Source,
		Root:     pipeline.Root,
	}
}

// =============================================================================
// DEVICE HANDLERS
// =============================================================================

// ListDevices returns all registered meters.
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.Registry.ListDevices(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list devices", err)
		return
	}

	dtos := make([]DeviceDTO, len(devices))
	for i, d := range devices {
		dtos[i] = toDeviceDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RegisterDevice registers a new meter.
func (h *Handler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "Device id is required", nil)
		return
	}

	existing, err := h.Registry.GetDevice(r.Context(), req.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to check device", err)
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "Device already registered", nil)
		return
	}

	device := sqlite.Device{ID: req.ID, Name: req.Name, RegisteredAt: time.Now().UTC()}
	if err := h.Registry.RegisterDevice(r.Context(), device); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to register device", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDeviceDTO(device))
}

// GetDevice returns a single meter.
func (h *Handler) GetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	device, err := h.Registry.GetDevice(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get device", err)
		return
	}
	if device == nil {
		writeError(w, http.StatusNotFound, "Device not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toDeviceDTO(*device))
}

// =============================================================================
// ARTIFACT HANDLERS
// =============================================================================

// GetDailyReading returns a meter's slot readings for one day.
// GET /api/devices/{id}/readings/daily?date=YYYY-MM-DD
func (h *Handler) GetDailyReading(w http.ResponseWriter, r *http.Request) {
	h.serveDailyArtifact(w, r, rollup.TaskDailyReading, rollup.DailyReadingPath)
}

// GetDailyConsumption returns a meter's per-slot consumption for one day.
// GET /api/devices/{id}/consumption/daily?date=YYYY-MM-DD
func (h *Handler) GetDailyConsumption(w http.ResponseWriter, r *http.Request) {
	h.serveDailyArtifact(w, r, rollup.TaskDailyConsumption, rollup.DailyConsumptionPath)
}

// GetMonthlyReading returns a meter's end-of-day readings for a month.
// GET /api/devices/{id}/readings/monthly?month=YYYY-MM
func (h *Handler) GetMonthlyReading(w http.ResponseWriter, r *http.Request) {
	h.serveMonthlyArtifact(w, r, rollup.TaskMonthlyReading, rollup.MonthlyReadingPath)
}

// GetMonthlyConsumption returns a meter's daily totals for a month.
// GET /api/devices/{id}/consumption/monthly?month=YYYY-MM
func (h *Handler) GetMonthlyConsumption(w http.ResponseWriter, r *http.Request) {
	h.serveMonthlyArtifact(w, r, rollup.TaskMonthlyConsumption, rollup.MonthlyConsumptionPath)
}

func (h *Handler) serveDailyArtifact(w http.ResponseWriter, r *http.Request, task rollup.TaskName, path func(string, rollup.RunDate) string) {
	device := chi.URLParam(r, "id")
	date, err := rollup.ParseRunDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}

	done, err := h.Ledger.HasCompleted(r.Context(), task, date.Key())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Completion ledger unavailable", err)
		return
	}
	if !done {
		writeError(w, http.StatusNotFound, "Artifact not published for this date", nil)
		return
	}

	h.serveDeviceRow(w, device, path(h.Root, date))
}

// serveMonthlyArtifact trusts the monthly table once any day of the
// month carries a success record for the producing task.
func (h *Handler) serveMonthlyArtifact(w http.ResponseWriter, r *http.Request, task rollup.TaskName, path func(string, rollup.RunDate) string) {
	device := chi.URLParam(r, "id")
	month, err := parseMonth(r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month (use YYYY-MM)", err)
		return
	}

	published := false
	for d := month; d.Month() == month.Month(); d = d.AddDays(1) {
		done, err := h.Ledger.HasCompleted(r.Context(), task, d.Key())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Completion ledger unavailable", err)
			return
		}
		if done {
			published = true
			break
		}
	}
	if !published {
		writeError(w, http.StatusNotFound, "Artifact not published for this month", nil)
		return
	}

	h.serveDeviceRow(w, device, path(h.Root, month))
}

// serveDeviceRow loads a table and extracts one device's row as a series.
func (h *Handler) serveDeviceRow(w http.ResponseWriter, device, path string) {
	table, err := rollup.Load(path)
	if err != nil {
		if errors.Is(err, rollup.ErrTableNotFound) {
			writeError(w, http.StatusNotFound, "Artifact not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load artifact", err)
		return
	}

	found := false
	for _, d := range table.Devices() {
		if d == device {
			found = true
			break
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, "Device not present in artifact", nil)
		return
	}

	series := SeriesDTO{Device: device, Labels: table.Columns, Values: make([]*float64, len(table.Columns))}
	for i, label := range table.Columns {
		if v, ok := table.Get(device, label); ok {
			f, _ := v.Float64()
			series.Values[i] = &f
		}
	}
	writeJSON(w, http.StatusOK, series)
}

// =============================================================================
// PIPELINE HANDLERS
// =============================================================================

// PipelineStatus returns per-task completion and history for a date.
// GET /api/pipeline/status?date=YYYY-MM-DD (default: yesterday)
func (h *Handler) PipelineStatus(w http.ResponseWriter, r *http.Request) {
	date := rollup.Yesterday()
	if raw := r.URL.Query().Get("date"); raw != "" {
		var err error
		if date, err = rollup.ParseRunDate(raw); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
			return
		}
	}

	status, err := h.buildStatus(r, date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Completion ledger unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// TriggerRun executes a pipeline run synchronously and reports the
// resulting per-task status.
// POST /api/pipeline/run
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	date := rollup.Yesterday()
	if req.Date != "" {
		var err error
		if date, err = rollup.ParseRunDate(req.Date); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
			return
		}
	}

	runErr := h.Pipeline.Run(r.Context(), date)

	resp := RunResponse{RunKey: date.Key()}
	if runErr != nil {
		resp.Error = runErr.Error()
	}
	if status, err := h.buildStatus(r, date); err == nil {
		resp.Status = status
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) buildStatus(r *http.Request, date rollup.RunDate) (PipelineStatusDTO, error) {
	status := PipelineStatusDTO{RunKey: date.Key()}

	tasks := append([]rollup.TaskName{rollup.TaskDailyReading}, rollup.DownstreamTasks...)
	records, err := h.Ledger.Records(r.Context(), date.Key())
	if err != nil {
		return status, err
	}

	latest := make(map[rollup.TaskName]rollup.CompletionRecord)
	for _, rec := range records {
		latest[rec.Task] = rec
		status.History = append(status.History, CompletionRecordDTO{
			Task:       string(rec.Task),
			RunKey:     rec.RunKey,
			Success:    rec.Success,
			Detail:     rec.Detail,
			RecordedAt: rec.RecordedAt.Format(time.RFC3339),
		})
	}
	for _, task := range tasks {
		rec, ok := latest[task]
		status.Tasks = append(status.Tasks, TaskStatusDTO{
			Task:      string(task),
			Completed: ok && rec.Success,
			Detail:    rec.Detail,
		})
	}
	return status, nil
}

// =============================================================================
// FEED HANDLER
// =============================================================================

// FeedDay exposes the raw upstream payload for a date, the same shape
// the ingestion stage consumes.
// GET /api/feed?date=YYYY-MM-DD (default: yesterday)
func (h *Handler) FeedDay(w http.ResponseWriter, r *http.Request) {
	date := rollup.Yesterday()
	if raw := r.URL.Query().Get("date"); raw != "" {
		var err error
		if date, err = rollup.ParseRunDate(raw); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
			return
		}
	}

	readings, err := h.Source.Fetch(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Upstream feed unavailable", err)
		return
	}

	payload := make(map[string]map[string]float64, len(readings))
	for device, series := range readings {
		row := make(map[string]float64, len(series))
		for slot, v := range series {
			f, _ := v.Float64()
			row[slot] = f
		}
		payload[device] = row
	}
	writeJSON(w, http.StatusOK, payload)
}

// =============================================================================
// HELPERS
// =============================================================================

func toDeviceDTO(d sqlite.Device) DeviceDTO {
	return DeviceDTO{
		ID:           d.ID,
		Name:         d.Name,
		RegisteredAt: d.RegisteredAt.Format(time.RFC3339),
	}
}

// parseMonth parses "YYYY-MM" into the month's first run date.
func parseMonth(s string) (rollup.RunDate, error) {
	return rollup.ParseRunDate(strings.TrimSpace(s) + "-01")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
