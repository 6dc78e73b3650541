package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_DirectFormats(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{
			name: "rfc1123z",
			raw:  "Fri, 26 Sep 2025 06:29:00 +0000",
			want: time.Date(2025, 9, 26, 6, 29, 0, 0, time.UTC),
		},
		{
			name: "rfc1123 with zone name",
			raw:  "Mon, 02 Jan 2006 15:04:05 UTC",
			want: time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC),
		},
		{
			name: "rfc3339",
			raw:  "2025-09-26T06:29:00Z",
			want: time.Date(2025, 9, 26, 6, 29, 0, 0, time.UTC),
		},
		{
			name: "single digit day",
			raw:  "Wed, 3 Sep 2025 10:00:00 +0000",
			want: time.Date(2025, 9, 3, 10, 0, 0, 0, time.UTC),
		},
		{
			name: "sql style",
			raw:  "2025-09-26 06:29:00",
			want: time.Date(2025, 9, 26, 6, 29, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
		})
	}
}

func TestNormalize_LocalizedTokens(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{
			name: "traditional weekday and month",
			raw:  "週五, 26 九月 2025 06:29:00 +0000",
			want: time.Date(2025, 9, 26, 6, 29, 0, 0, time.UTC),
		},
		{
			name: "simplified weekday",
			raw:  "周一, 6 十月 2025 12:00:00 +0800",
			want: time.Date(2025, 10, 6, 4, 0, 0, 0, time.UTC),
		},
		{
			name: "two character month wins over prefix",
			raw:  "週三, 12 十一月 2025 08:15:00 +0000",
			want: time.Date(2025, 11, 12, 8, 15, 0, 0, time.UTC),
		},
		{
			name: "december",
			raw:  "星期二, 30 十二月 2025 23:59:59 +0000",
			want: time.Date(2025, 12, 30, 23, 59, 59, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			require.NoError(t, err)
			assert.True(t, got.UTC().Equal(tt.want), "got %v, want %v", got.UTC(), tt.want)
		})
	}
}

func TestNormalize_Failures(t *testing.T) {
	for _, raw := range []string{"", "   ", "not a date", "昨天", "32 九月 2025"} {
		t.Run(raw, func(t *testing.T) {
			_, err := Normalize(raw)
			assert.Error(t, err)
		})
	}
}
