package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ValidAmounts(t *testing.T) {
	for _, value := range []string{"0.01", "10.50", "99.99", "0", "12", "12.3"} {
		m, err := New(value)
		require.NoError(t, err, "value %q", value)
		assert.False(t, m.IsNegative())
	}
}

func TestNew_RejectsExcessPrecision(t *testing.T) {
	_, err := New("10.505")
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestNew_RejectsGarbage(t *testing.T) {
	_, err := New("ten reais")
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestNewFromFloat_RejectsNonFinite(t *testing.T) {
	_, err := NewFromFloat(nan())
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func TestNewPayout_Bounds(t *testing.T) {
	_, err := NewPayout("0.00")
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = NewPayout("100.00")
	require.ErrorIs(t, err, ErrInvalidAmount)

	m, err := NewPayout("99.99")
	require.NoError(t, err)
	assert.Equal(t, "99.99", m.String())

	m, err = NewPayout("0.01")
	require.NoError(t, err)
	assert.Equal(t, "0.01", m.String())
}

func TestArithmetic(t *testing.T) {
	a, err := New("50.00")
	require.NoError(t, err)
	b, err := New("10.50")
	require.NoError(t, err)

	assert.Equal(t, "39.50", a.Sub(b).String())
	assert.Equal(t, "60.50", a.Add(b).String())
	assert.True(t, b.LessThan(a))
	assert.True(t, a.GreaterThan(b))
	assert.True(t, a.Sub(a).IsZero())
	assert.True(t, b.Sub(a).IsNegative())
}

func TestJSONRoundTrip(t *testing.T) {
	m, err := New("12.34")
	require.NoError(t, err)

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `"12.34"`, string(data))

	var parsed Money
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.True(t, m.Equal(parsed))
}

func TestUnmarshalJSON_RejectsExcessPrecision(t *testing.T) {
	var m Money
	err := json.Unmarshal([]byte(`"1.999"`), &m)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestDisplay(t *testing.T) {
	m, err := New("12.34")
	require.NoError(t, err)
	assert.Equal(t, "R$ 12,34", m.Display())
}
