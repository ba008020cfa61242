package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextDateCrossesMonthAndYear(t *testing.T) {
	d, err := ParseDate("2023-12-31")
	require.NoError(t, err)

	assert.Equal(t, "2024-01-01", FormatDate(NextDate(d)))
	assert.Equal(t, "2024-03-01", FormatDate(NextDate(time.Date(2024, 2, 29, 15, 0, 0, 0, time.UTC))))
}

func TestDateToUnixRoundTrip(t *testing.T) {
	d, err := ParseDate("2024-01-10")
	require.NoError(t, err)

	ms := DateToUnix(d)
	assert.Equal(t, int64(1704844800000), ms)
	assert.True(t, UnixToDate(ms).Equal(d))
}

func TestParseDateRejectsGarbage(t *testing.T) {
	_, err := ParseDate("10/01/2024")
	assert.Error(t, err)
}
