package resilience

import (
	"fmt"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit transient", NewTransientError(eris.New("429"), 429), true},
		{"wrapped transient", fmt.Errorf("call failed: %w", NewTransientError(eris.New("503"), 503)), true},
		{"sqlite busy", eris.New("sqlite: insert suggestion: database is locked (5) (SQLITE_BUSY)"), true},
		{"postgres serialization", eris.New("ERROR: could not serialize access (SQLSTATE 40001)"), true},
		{"postgres deadlock", eris.New("ERROR: deadlock detected (SQLSTATE 40P01)"), true},
		{"connection reset", eris.New("read tcp: connection reset by peer"), true},
		{"io timeout", eris.New("dial tcp: i/o timeout"), true},
		{"plain error", eris.New("no proposal for project code"), false},
		{"constraint violation", eris.New("UNIQUE constraint failed: contacts.email"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 201, 400, 401, 403, 404, 409, 422} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}
