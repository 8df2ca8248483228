package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"message": "success"}

	err := WriteJSON(w, http.StatusOK, data)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "success")
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	err := errors.New("test error")

	WriteError(w, http.StatusBadRequest, err)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "test error", decodeError(t, w).Error)
}

func TestWriteErrorMessage_IncludesRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set(RequestIDHeader, "req-1")

	WriteErrorMessage(w, http.StatusNotFound, "history not found")

	resp := decodeError(t, w)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "history not found", resp.Error)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Nil(t, resp.Details)
}

func TestWriteDetailedError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteDetailedError(w, http.StatusConflict, "incompatible", []string{"a", "b"})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"incompatible","details":["a","b"]}`, w.Body.String())
}

func TestWriteStatusHelpers(t *testing.T) {
	tests := []struct {
		name  string
		write func(w http.ResponseWriter)
		code  int
		msg   string
	}{
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "invalid input") }, http.StatusBadRequest, "invalid input"},
		{"not found", func(w http.ResponseWriter) { WriteNotFoundError(w, "no such revision") }, http.StatusNotFound, "no such revision"},
		{"conflict", func(w http.ResponseWriter) { WriteConflict(w, "revision exists") }, http.StatusConflict, "revision exists"},
		{"internal", func(w http.ResponseWriter) { WriteInternalError(w) }, http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.msg, decodeError(t, w).Error)
		})
	}
}

func TestWriteCreated(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]int{"revision": 3}

	err := WriteCreated(w, data)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"revision":3`)
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteSuccess(w, []string{"customers"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["customers"]`, w.Body.String())
}

func TestWriteYAML(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteYAML(w, http.StatusOK, []byte("api: customers\n"))

	assert.NoError(t, err)
	assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))
	assert.Equal(t, "api: customers\n", w.Body.String())
}
