package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_MapsHTTPStatus(t *testing.T) {
	tests := []struct {
		code   ErrorCode
		status int
	}{
		{CodeInvalidParam, http.StatusBadRequest},
		{CodeNormalizationFailed, http.StatusUnprocessableEntity},
		{CodeRetrievalUnavailable, http.StatusServiceUnavailable},
		{CodeGenerationUnavailable, http.StatusServiceUnavailable},
		{CodeTimeout, http.StatusGatewayTimeout},
		{CodeDatabaseError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.status, New(tt.code, "x").HTTPStatus)
		})
	}
}

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := stderrors.New("dial tcp: refused")
	err := Wrap(cause, CodeIndexUnavailable, "upsert failed")

	assert.Equal(t, "[4103] upsert failed: dial tcp: refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[4101] bad item", New(CodeNormalizationFailed, "bad item").Error())
}

func TestHasCode_WalksChain(t *testing.T) {
	inner := New(CodeEmbeddingUnavailable, "embed exhausted")
	outer := Wrap(fmt.Errorf("stage embed: %w", inner), CodeRetrievalUnavailable, "retrieval failed")

	assert.True(t, HasCode(outer, CodeRetrievalUnavailable))
	assert.True(t, HasCode(outer, CodeEmbeddingUnavailable))
	assert.False(t, HasCode(outer, CodeGenerationUnavailable))
	assert.False(t, HasCode(stderrors.New("plain"), CodeUnknown))
	assert.False(t, HasCode(nil, CodeUnknown))
}

func TestAsAppError(t *testing.T) {
	appErr := New(CodeInvalidParam, "bad")
	wrapped := fmt.Errorf("handler: %w", appErr)

	got := AsAppError(wrapped)
	require.NotNil(t, got)
	assert.Same(t, appErr, got)
	assert.True(t, IsAppError(wrapped))

	plain := AsAppError(stderrors.New("boom"))
	assert.Equal(t, CodeUnknown, plain.Code)
	assert.Equal(t, CodeUnknown, CodeOf(stderrors.New("boom")))
	assert.Equal(t, CodeInvalidParam, CodeOf(wrapped))
}
