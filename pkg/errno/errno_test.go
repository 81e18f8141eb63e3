package errno

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrnoIsMatchesByCode(t *testing.T) {
	err := ErrInvalidParams.WithMessage("from should be same as current address")

	assert.True(t, errors.Is(err, ErrInvalidParams))
	assert.False(t, errors.Is(err, ErrUserRejected))
	assert.Equal(t, "from should be same as current address", err.Error())

	wrapped := fmt.Errorf("build tx: %w", err)
	assert.True(t, errors.Is(wrapped, ErrInvalidParams))
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"nil", nil, 0, "Success"},
		{"typed", ErrAlreadyProcessing, -32002, ErrAlreadyProcessing.Message},
		{"wrapped", fmt.Errorf("gate: %w", ErrUserRejected), 4001, ErrUserRejected.Message},
		{"unknown", errors.New("boom"), InternalServerError.Code, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := Decode(tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantMsg, msg)
		})
	}
}

func TestDecodeRPCUnknownError(t *testing.T) {
	code, msg, data := DecodeRPC(errors.New("upstream exploded"))
	assert.Equal(t, -32603, code)
	assert.Equal(t, "upstream exploded", msg)
	assert.Nil(t, data)

	code, _, data = DecodeRPC(ErrSubmitFailed.WithData(map[string]string{"reason": "nonce too low"}))
	assert.Equal(t, -32003, code)
	assert.NotNil(t, data)
}
