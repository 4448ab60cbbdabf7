package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gridline/meter-rollup/rollup"
)

// HTTPSource fetches a day's readings from a vendor endpoint. The vendor
// returns `{"<meter_id>": {"<slot>": <cumulative kWh>, ...}, ...}`; the
// requested date travels as a `date` query parameter.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// NewHTTPSource creates a source against the vendor URL.
func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{
		URL:    url,
		Client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch performs the vendor request. Every failure mode, transport,
// status, or payload, maps to rollup.ErrUpstreamFetch so the ingestion
// stage fails without writing a file.
func (h *HTTPSource) Fetch(ctx context.Context, date rollup.RunDate) (rollup.Readings, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %v: %w", err, rollup.ErrUpstreamFetch)
	}
	q := req.URL.Query()
	q.Set("date", date.Key())
	req.URL.RawQuery = q.Encode()

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vendor request: %v: %w", err, rollup.ErrUpstreamFetch)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vendor returned %s: %w", resp.Status, rollup.ErrUpstreamFetch)
	}

	var payload map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode vendor payload: %v: %w", err, rollup.ErrUpstreamFetch)
	}

	readings := make(rollup.Readings, len(payload))
	for device, series := range payload {
		converted := make(map[string]decimal.Decimal, len(series))
		for slot, value := range series {
			converted[slot] = decimal.NewFromFloat(value)
		}
		readings[device] = converted
	}
	return readings, nil
}

var _ rollup.ReadingSource = (*HTTPSource)(nil)
