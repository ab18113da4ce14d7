package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name" validate:"required,min=1,max=5"`
	Email string `json:"email" validate:"omitempty,email"`
	Role  string `json:"role" validate:"omitempty,oneof=ADMIN MEMBER"`
	Count int    `json:"count" validate:"gt=0"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name   string
		in     sample
		fields []string
	}{
		{"valid", sample{Name: "ok", Count: 1}, nil},
		{"missing name", sample{Count: 1}, []string{"name is required"}},
		{"too long", sample{Name: "toolong", Count: 1}, []string{"name must be at most 5"}},
		{"bad email", sample{Name: "a", Email: "nope", Count: 1}, []string{"email must be a valid email"}},
		{"bad role", sample{Name: "a", Role: "OWNER", Count: 1}, []string{"role must be one of: ADMIN MEMBER"}},
		{"several", sample{}, []string{"name is required", "count must be greater than 0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.in)
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			var verr *Error
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.fields, verr.Fields)
		})
	}
}
