package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate(t *testing.T) {
	t.Run("JSON", func(t *testing.T) {
		var payload struct {
			Start Date  `json:"start"`
			End   *Date `json:"end"`
		}
		require.NoError(t, json.Unmarshal([]byte(`{"start":"2026-03-01","end":"2026-03-05T10:00:00Z"}`), &payload))
		assert.Equal(t, "2026-03-01", payload.Start.String())
		require.NotNil(t, payload.End)
		assert.Equal(t, "2026-03-05", payload.End.String())

		raw, err := json.Marshal(payload.Start)
		require.NoError(t, err)
		assert.Equal(t, `"2026-03-01"`, string(raw))
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		var d Date
		assert.Error(t, json.Unmarshal([]byte(`"03/01/2026"`), &d))
	})

	t.Run("Scan", func(t *testing.T) {
		var d Date
		require.NoError(t, d.Scan(time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)))
		assert.Equal(t, "2026-01-02", d.String())

		require.NoError(t, d.Scan("2026-02-03 00:00:00+00:00"))
		assert.Equal(t, "2026-02-03", d.String())

		require.NoError(t, d.Scan([]byte("2026-04-05")))
		assert.Equal(t, "2026-04-05", d.String())

		assert.Error(t, d.Scan(42))
	})
}

func TestBookingOverlaps(t *testing.T) {
	b := &Booking{StartDate: NewDate(2026, 5, 10), ReturnByDate: NewDate(2026, 5, 15)}

	tests := []struct {
		name       string
		start, end Date
		want       bool
	}{
		{"before", NewDate(2026, 5, 1), NewDate(2026, 5, 10), false},
		{"after", NewDate(2026, 5, 15), NewDate(2026, 5, 20), false},
		{"inside", NewDate(2026, 5, 11), NewDate(2026, 5, 12), true},
		{"covering", NewDate(2026, 5, 1), NewDate(2026, 5, 30), true},
		{"tail", NewDate(2026, 5, 14), NewDate(2026, 5, 16), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.Overlaps(tt.start, tt.end))
		})
	}
}

func TestBookingStatus(t *testing.T) {
	for _, s := range NonTerminalStatuses {
		assert.True(t, s.IsNonTerminal(), s)
	}
	for _, s := range []BookingStatus{StatusCompleted, StatusDeclined, StatusClosed} {
		assert.False(t, s.IsNonTerminal(), s)
	}
	assert.False(t, BookingStatus("confirmed").Valid())
}

func TestAverageRating(t *testing.T) {
	u := &User{}
	assert.Equal(t, 0.0, u.AverageRating())

	u.RatingSum, u.RatingCount = 9, 2
	assert.Equal(t, 4.5, u.AverageRating())
	assert.Equal(t, 4.5, u.Public().AverageRating)
}

func TestPayload(t *testing.T) {
	p := Payload{"booking_id": "b1", "stars": 4, "nested": map[string]any{"a": 1}, "nothing": nil}

	v, err := p.Value()
	require.NoError(t, err)

	var back Payload
	require.NoError(t, back.Scan(v))
	assert.Equal(t, "b1", back["booking_id"])

	flat := p.StringMap()
	assert.Equal(t, "b1", flat["booking_id"])
	assert.Equal(t, "4", flat["stars"])
	assert.Equal(t, `{"a":1}`, flat["nested"])
	assert.Equal(t, "", flat["nothing"])
}

func TestItemFilterNormalize(t *testing.T) {
	f := ItemFilter{Categories: []string{"Tools", "All"}, PageSize: 1000}
	f.Normalize()
	assert.Nil(t, f.Categories)
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, MaxPageSize, f.PageSize)
	assert.Equal(t, 0, f.Offset())
}
