package utils

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Status   string `validate:"required,oneof=placed delivered"`
	Quantity int    `validate:"gt=0"`
	Reason   string `validate:"max=5"`
}

func TestFormatValidationError(t *testing.T) {
	v := validator.New()

	err := v.Struct(sampleRequest{Status: "lost", Quantity: 0, Reason: "too long reason"})
	require.Error(t, err)

	formatted := FormatValidationError(err)
	require.Equal(t, "status must be one of [placed delivered]", formatted["status"])
	require.Equal(t, "quantity must be greater than 0", formatted["quantity"])
	require.Equal(t, "reason must be at most 5", formatted["reason"])
}

func TestFormatValidationError_NonValidationError(t *testing.T) {
	formatted := FormatValidationError(errors.New("unexpected EOF"))
	require.Equal(t, map[string]string{"body": "unexpected EOF"}, formatted)
}
