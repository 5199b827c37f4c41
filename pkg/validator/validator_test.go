package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-booking/pkg/errors"
)

type patient struct {
	Name          string `json:"name" validate:"required"`
	Age           int    `json:"age" validate:"gt=0"`
	Phone         string `json:"phone" validate:"required_if=WantsReminder true"`
	WantsReminder bool   `json:"wants_reminder"`
}

type slotRequest struct {
	Date string `json:"date" validate:"required,yyyymmdd"`
	Time string `json:"time" validate:"required,hhmm"`
}

func TestValidatePasses(t *testing.T) {
	v := New()
	assert.NoError(t, v.Validate(patient{Name: "Asha", Age: 30}))
	assert.NoError(t, v.Validate(&slotRequest{Date: "2024-05-01", Time: "09:30"}))
}

func TestValidateCollectsFieldErrors(t *testing.T) {
	err := New().Validate(patient{WantsReminder: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	var fields Errors
	require.True(t, errors.As(err, &fields))
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Field)
	}
	assert.ElementsMatch(t, []string{"name", "age", "phone"}, names)
	assert.Contains(t, err.Error(), "phone is required when reminders are requested")
}

func TestCustomRules(t *testing.T) {
	v := New()
	for _, tm := range []string{"9:30", "24:00", "12:60", "ab:cd"} {
		assert.Error(t, v.Validate(slotRequest{Date: "2024-05-01", Time: tm}), tm)
	}
	assert.Error(t, v.Validate(slotRequest{Date: "01-05-2024", Time: "10:00"}))
}
