package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusConflict, "slot already booked")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"slot already booked"}`, rec.Body.String())
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	var dst struct {
		Name string `json:"name"`
	}
	require.Error(t, DecodeJSON(req, &dst))
}

func TestErrorMessage(t *testing.T) {
	base := errors.New("bookings: slot already booked")
	assert.Equal(t, "slot already booked", ErrorMessage(base))
	assert.Equal(t, "all fields are required: phone", ErrorMessage(fmt.Errorf("%w: phone", errors.New("users: all fields are required"))))
	assert.Equal(t, "plain message", ErrorMessage(errors.New("plain message")))
}
