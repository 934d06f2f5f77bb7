package http

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteJSON_MarshalFailureIsAnError(t *testing.T) {
	rec := httptest.NewRecorder()

	data := writeJSON(rec, 200, map[string]interface{}{"bad": func() {}})
	assert.Nil(t, data)
	assert.Equal(t, 500, rec.Code)

	rec = httptest.NewRecorder()
	data = writeJSON(rec, 200, map[string]string{"ok": "yes"})
	assert.NotNil(t, data)
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
