package web

import (
	"testing"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/eventdesk/internal/features"
)

func TestParseTemplates(t *testing.T) {
	sets, err := parseTemplates(templateFuncs(features.New(features.Config{}), bluemonday.UGCPolicy()))
	require.NoError(t, err)

	for _, name := range []string{
		"home.html", "signup.html", "signin.html", "profile.html",
		"events.html", "event_new.html", "test.html", "connection.html",
	} {
		require.Contains(t, sets, name)
	}
	require.NotContains(t, sets, "base.html")
}

func TestParseDateTimeLocal(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "2025-02-01T10:00", want: time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)},
		{in: "2025-02-01T10:00:30", want: time.Date(2025, 2, 1, 10, 0, 30, 0, time.UTC)},
		{in: "  ", want: time.Time{}},
		{in: "01/02/2025", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDateTimeLocal(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.True(t, tt.want.Equal(got))
		})
	}
}

func TestEventForm_invalidDate(t *testing.T) {
	_, err := eventForm{Title: "x", StartDate: "tomorrow", EndDate: "2025-02-01T10:00"}.toNewEvent()
	require.EqualError(t, err, "Start date is not a valid date and time")
}
