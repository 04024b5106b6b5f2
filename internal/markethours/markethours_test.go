package markethours

import (
	"strings"
	"testing"
	"time"
)

func ist(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, IST)
}

func TestNSE_IsOpen(t *testing.T) {
	s := NSE()
	cases := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"before open", ist(2026, time.January, 27, 9, 14), false},
		{"at open", ist(2026, time.January, 27, 9, 15), true},
		{"midday", ist(2026, time.January, 27, 12, 0), true},
		{"at close", ist(2026, time.January, 27, 15, 30), true},
		{"second after close", ist(2026, time.January, 27, 15, 30).Add(time.Second), false},
		{"second before open", ist(2026, time.January, 27, 9, 15).Add(-time.Second), false},
		{"after close", ist(2026, time.January, 27, 15, 31), false},
		{"saturday", ist(2026, time.January, 24, 11, 0), false},
		{"republic day", ist(2026, time.January, 26, 11, 0), false},
		{"utc input", time.Date(2026, time.January, 27, 4, 0, 0, 0, time.UTC), true}, // 09:30 IST
	}
	for _, tc := range cases {
		if got := s.IsOpen(tc.t); got != tc.want {
			t.Errorf("%s: IsOpen=%v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNSE_NextOpen(t *testing.T) {
	s := NSE()

	// Friday evening -> Monday, but Jan 26 2026 is a holiday -> Tuesday
	got := s.NextOpen(ist(2026, time.January, 23, 18, 0))
	want := ist(2026, time.January, 27, 9, 15)
	if !got.Equal(want) {
		t.Errorf("NextOpen = %v, want %v", got, want)
	}

	// early morning on a trading day -> same day
	got = s.NextOpen(ist(2026, time.January, 27, 7, 0))
	if !got.Equal(ist(2026, time.January, 27, 9, 15)) {
		t.Errorf("NextOpen same day = %v", got)
	}
}

func TestStatusString(t *testing.T) {
	s := NSE()
	if msg := s.StatusString(ist(2026, time.January, 27, 15, 0)); !strings.HasPrefix(msg, "Market Open, closes in 30m") {
		t.Errorf("unexpected open status %q", msg)
	}
	if msg := s.StatusString(ist(2026, time.January, 27, 16, 0)); !strings.HasPrefix(msg, "Market Closed, opens Wed 09:15") {
		t.Errorf("unexpected closed status %q", msg)
	}
}
