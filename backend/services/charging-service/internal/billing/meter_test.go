package billing

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeterValidatorAcceptsMonotonicReadings(t *testing.T) {
	v := NewMeterValidator(50, 0.5)
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	prev := Reading{Value: dec("100.0"), At: t0}
	next := Reading{Value: dec("112.5"), At: t0.Add(30 * time.Minute)}

	got, err := v.Validate(prev, next)
	require.NoError(t, err)
	assert.True(t, got.Value.Equal(dec("112.5")))

	same, err := v.Validate(next, Reading{Value: dec("112.5"), At: next.At})
	require.NoError(t, err)
	assert.True(t, same.Value.Equal(next.Value))
}

func TestMeterValidatorRejectsNonMonotonic(t *testing.T) {
	v := NewMeterValidator(50, 0.5)
	t0 := time.Now()

	_, err := v.Validate(Reading{Value: dec("10"), At: t0}, Reading{Value: dec("9.99"), At: t0.Add(time.Minute)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidReading)
	assert.ErrorIs(t, err, ErrNonMonotonic)
	assert.NotErrorIs(t, err, ErrOutOfRange)

	var rerr *ReadingError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, ReasonNonMonotonic, rerr.Reason)
}

func TestMeterValidatorRejectsImplausibleJump(t *testing.T) {
	v := NewMeterValidator(50, 0.5)
	t0 := time.Now()

	// 50 kW for 6 minutes is 5 kWh, plus 0.5 tolerance
	_, err := v.Validate(Reading{Value: dec("0"), At: t0}, Reading{Value: dec("5.5"), At: t0.Add(6 * time.Minute)})
	assert.NoError(t, err)

	_, err = v.Validate(Reading{Value: dec("0"), At: t0}, Reading{Value: dec("5.6"), At: t0.Add(6 * time.Minute)})
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.ErrorIs(t, err, ErrInvalidReading)
}

func TestMeterValidatorRejectsNegative(t *testing.T) {
	v := NewMeterValidator(0, 0)
	_, err := v.Validate(Reading{Value: dec("0")}, Reading{Value: dec("-1")})
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestMeterValidatorWithoutRateBound(t *testing.T) {
	v := NewMeterValidator(0, 0)
	t0 := time.Now()
	_, err := v.Validate(Reading{Value: dec("0"), At: t0}, Reading{Value: dec("9999"), At: t0})
	assert.NoError(t, err)
}

func TestMeterValidatorWithPowerCap(t *testing.T) {
	v := NewMeterValidator(350, 0).WithPowerCap(10)
	assert.InDelta(t, 11.0, v.MaxPowerKW, 1e-9)

	t0 := time.Now()
	_, err := v.Validate(Reading{Value: dec("0"), At: t0}, Reading{Value: dec("12"), At: t0.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrOutOfRange)

	unchanged := NewMeterValidator(7, 0).WithPowerCap(22)
	assert.InDelta(t, 7.0, unchanged.MaxPowerKW, 1e-9)
	assert.InDelta(t, 7.0, NewMeterValidator(7, 0).WithPowerCap(0).MaxPowerKW, 1e-9)
}
