package locale

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/participants/internal/config"
)

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(config.Locale{Language: "en-US", Currency: "XX", Timezone: "UTC"})
	assert.Error(t, err)
	_, err = New(config.Locale{Language: "en-US", Currency: "USD", Timezone: "Mars/Olympus"})
	assert.Error(t, err)
}

func TestNumberAndCurrency(t *testing.T) {
	f := Default()
	assert.Equal(t, "1,234.50", f.Number(1234.5, 2))
	assert.Equal(t, "3", f.Number(3, 0))

	c := f.Currency(12.5)
	assert.Contains(t, c, "$")
	assert.Contains(t, c, "12.50")
}

func TestDateRendering(t *testing.T) {
	f, err := New(config.Locale{
		Language: "en-US", Currency: "USD", Timezone: "America/New_York", DateLayout: "2006-01-02",
	})
	require.NoError(t, err)

	// 2024-03-01 02:00 UTC is still Feb 29 in New York.
	ts := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC).Unix()
	assert.Equal(t, "2024-02-29", f.Date(ts))
}

func TestParseDate(t *testing.T) {
	f := Default()

	got, err := f.ParseDate("March 5, 2024", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), got)

	got, err = f.ParseDate("2024-03-05", true)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Day())

	_, err = f.ParseDate("5 Mar 2024", true)
	assert.Error(t, err)

	_, err = f.ParseDate("not a date", false)
	assert.Error(t, err)
}
