package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketingapi/internal/types"
)

type leadForm struct {
	Name    string `json:"name" validate:"notblank,max=200"`
	Email   string `json:"email" validate:"required,email"`
	Company string `json:"company" validate:"max=200"`
}

func TestValidateStruct(t *testing.T) {
	v := NewValidator(discardLogger())

	tests := []struct {
		name      string
		in        leadForm
		wantCode  types.ErrorCode
		wantField string
	}{
		{name: "valid", in: leadForm{Name: "Ada", Email: "ada@example.com"}},
		{name: "blank name", in: leadForm{Name: "   ", Email: "ada@example.com"}, wantCode: types.ErrCodeValidationMissingField, wantField: "name"},
		{name: "bad email", in: leadForm{Name: "Ada", Email: "not-an-email"}, wantCode: types.ErrCodeValidationInvalidEmail, wantField: "email"},
		{name: "too long", in: leadForm{Name: "Ada", Email: "ada@example.com", Company: string(make([]byte, 201))}, wantCode: types.ErrCodeValidationInvalidField, wantField: "company"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateStruct(tt.in)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			var appErr *types.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantCode, appErr.Code)
			assert.Contains(t, appErr.Details, tt.wantField)
		})
	}
}
