package shared

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/mediaq/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceID(t *testing.T) {
	t.Parallel()

	assert.Empty(t, GetTraceID(context.Background()))

	ctx := SetTraceID(context.Background(), "req-42")
	assert.Equal(t, "req-42", GetTraceID(ctx))

	generated := GetTraceID(SetTraceID(context.Background(), ""))
	assert.Len(t, generated, 32)
	assert.NotEqual(t, generated, NewTraceID())
}

func TestPrincipal(t *testing.T) {
	t.Parallel()

	_, ok := PrincipalFrom(context.Background())
	assert.False(t, ok)

	want := Principal{UserID: uuid.New(), Admin: true}
	got, ok := PrincipalFrom(WithPrincipal(context.Background(), want))
	require.True(t, ok)
	assert.Equal(t, want, got)
}

type sampleRequest struct {
	Limit     int    `json:"limit" validate:"omitempty,gte=1"`
	AssetType string `json:"assetType" validate:"omitempty,oneof=video image"`
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	t.Run("empty body keeps defaults", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
		v := sampleRequest{Limit: 7}
		require.NoError(t, DecodeJSON(httptest.NewRecorder(), req, &v))
		assert.Equal(t, 7, v.Limit)
	})

	t.Run("valid body", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"limit":3,"assetType":"video"}`))
		var v sampleRequest
		require.NoError(t, DecodeJSON(httptest.NewRecorder(), req, &v))
		assert.Equal(t, sampleRequest{Limit: 3, AssetType: "video"}, v)
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"limit":`))
		var v sampleRequest
		assert.Error(t, DecodeJSON(httptest.NewRecorder(), req, &v))
	})
}

func TestValidateRequestReportsJSONNames(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateRequest(&sampleRequest{}))

	err := ValidateRequest(&sampleRequest{Limit: -1, AssetType: "gif"})
	require.Error(t, err)
	assert.ElementsMatch(t, []string{"limit", "assetType"}, InvalidFields(err))
	assert.Nil(t, InvalidFields(errors.New("plain")))
}

func TestRespondWithErrorAndLog(t *testing.T) {
	t.Parallel()

	log, logs := logger.NewTestLogger()
	ctx := logger.WithLogger(SetTraceID(context.Background(), "trace-1"), log)
	req := httptest.NewRequest(http.MethodGet, "/api/admin/media/jobs/health", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	RespondWithErrorAndLog(w, req, http.StatusInternalServerError, "Failed to check queue health",
		errors.New("dial postgres://mediaq:hunter22@db:5432/mediaq: refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Failed to check queue health", body.Error)
	assert.Equal(t, "trace-1", body.TraceID)
	assert.NotContains(t, w.Body.String(), "postgres")

	entry, ok := logs.Find("API error response")
	require.True(t, ok)
	assert.Equal(t, "ERROR", entry["level"])
	assert.NotContains(t, entry["error"], "hunter22")
}

func TestRespondWithError(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	RespondWithError(w, req, http.StatusForbidden, "Admin access required.")

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"Admin access required."}`, w.Body.String())
}
