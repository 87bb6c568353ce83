package apperr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil error", nil, KindUnknown},
		{"plain error", errors.New("boom"), KindUnknown},
		{"configuration", Configuration("validate", "bad"), KindConfiguration},
		{"wrapped schema", fmt.Errorf("resolve: %w", New(KindSchema, "resolve", "no column")), KindSchema},
		{"wrap helper", Wrap(KindQuery, "run", errors.New("SYNTAX_ERROR")), KindQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(KindOutput, "write", nil))
}

func TestTimeoutMessage(t *testing.T) {
	err := Timeout("run query", "QUEUED", 30*time.Second)

	assert.True(t, Is(err, KindTimeout))
	assert.False(t, Is(err, KindQuery))
	assert.Contains(t, err.Error(), "stage QUEUED")
	assert.Contains(t, err.Error(), "30s")
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("access denied")
	err := Wrap(KindHousekeeping, "rename", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "housekeeping error in rename: access denied", err.Error())
}
