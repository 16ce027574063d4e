// Package recognition talks to the upstream plate-recognition service. The
// model itself is opaque: a frame goes in, a plate string and a confidence
// come out.
package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNoDetection means the service processed the frame but found no plate.
var ErrNoDetection = errors.New("no plate detected")

type Detection struct {
	PlateText  string  `json:"plate_text"`
	Confidence float64 `json:"confidence"`
}

type Recognizer interface {
	Recognize(ctx context.Context, imageBase64 string) (Detection, error)
}

// HTTPRecognizer posts {"image_base64": ...} to Endpoint and expects a
// Detection in reply.
type HTTPRecognizer struct {
	Endpoint string
	Timeout  time.Duration
	Client   *http.Client
}

func NewHTTPRecognizer(endpoint string, timeout time.Duration) *HTTPRecognizer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPRecognizer{
		Endpoint: endpoint,
		Timeout:  timeout,
		Client:   &http.Client{Timeout: timeout},
	}
}

func (r *HTTPRecognizer) Recognize(ctx context.Context, imageBase64 string) (Detection, error) {
	if strings.TrimSpace(imageBase64) == "" {
		return Detection{}, ErrNoDetection
	}

	body, err := json.Marshal(map[string]string{"image_base64": imageBase64})
	if err != nil {
		return Detection{}, fmt.Errorf("recognize: encode: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Detection{}, fmt.Errorf("recognize: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return Detection{}, fmt.Errorf("recognize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
		return Detection{}, ErrNoDetection
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Detection{}, fmt.Errorf("recognize: http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var d Detection
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&d); err != nil {
		return Detection{}, fmt.Errorf("recognize: decode: %w", err)
	}
	if strings.TrimSpace(d.PlateText) == "" {
		return Detection{}, ErrNoDetection
	}
	d.Confidence = max(0, min(1, d.Confidence))
	return d, nil
}
