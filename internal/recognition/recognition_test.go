package recognition_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartgate/server/internal/recognition"
)

func TestHTTPRecognizer_Detects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ZnJhbWU=", body["image_base64"])
		_ = json.NewEncoder(w).Encode(recognition.Detection{PlateText: "WXY 1234", Confidence: 1.7})
	}))
	defer srv.Close()

	rec := recognition.NewHTTPRecognizer(srv.URL, 0)
	d, err := rec.Recognize(context.Background(), "ZnJhbWU=")
	require.NoError(t, err)
	assert.Equal(t, "WXY 1234", d.PlateText)
	assert.Equal(t, 1.0, d.Confidence, "confidence is clamped into [0,1]")
}

func TestHTTPRecognizer_NoPlate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	_, err := recognition.NewHTTPRecognizer(srv.URL, 0).Recognize(context.Background(), "ZnJhbWU=")
	assert.ErrorIs(t, err, recognition.ErrNoDetection)
}

func TestHTTPRecognizer_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := recognition.NewHTTPRecognizer(srv.URL, 0).Recognize(context.Background(), "ZnJhbWU=")
	require.Error(t, err)
	assert.NotErrorIs(t, err, recognition.ErrNoDetection)
}
