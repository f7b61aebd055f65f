package flight

import (
	"strings"
	"testing"
	"time"
)

func unix(t time.Time) *int64 {
	v := t.Unix()
	return &v
}

func sampleInfo(dep, arr time.Time) *Info {
	return &Info{
		Airline:     "United",
		Identifier:  "UAL123",
		Link:        "https://example.test/live/flight/UAL123",
		Origin:      Departure{Airport: "San Francisco", IATA: "SFO", DepartureTime: unix(dep)},
		Destination: Arrival{Airport: "Newark", IATA: "EWR", ArrivalTime: unix(arr)},
	}
}

func TestSummaryPhases(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name     string
		dep, arr time.Time
		want     string
	}{
		{"departing", now.Add(3 * time.Hour), now.Add(8 * time.Hour), "Departing in about 🕙 **3 hours**"},
		{"arriving", now.Add(-time.Hour), now.Add(30 * time.Minute), "Arriving in about 🕙 **30 minutes**"},
		{"completed", now.Add(-8 * time.Hour), now.Add(-2 * time.Hour), "Flight completed about 🕙 **2 hours** ago"},
	}
	for _, tc := range cases {
		got := Summary(sampleInfo(tc.dep, tc.arr), true, now)
		if !strings.HasPrefix(got, "[United `UAL123`](https://example.test/live/flight/UAL123) San Francisco (`SFO`) ➔ Newark (`EWR`)") {
			t.Errorf("%s: unexpected prefix: %s", tc.name, got)
		}
		if !strings.Contains(got, tc.want) {
			t.Errorf("%s: %q does not contain %q", tc.name, got, tc.want)
		}
	}
}

func TestSummaryWithoutTimes(t *testing.T) {
	info := sampleInfo(time.Now(), time.Now())
	info.Origin.DepartureTime = nil
	if got := Summary(info, true, time.Now()); !strings.HasSuffix(got, "**Flight times not available**") {
		t.Fatalf("got %q", got)
	}
	if got := Summary(info, false, time.Now()); strings.Contains(got, "**") {
		t.Fatalf("untracked summary should not carry a phase: %q", got)
	}
}

func TestCombine(t *testing.T) {
	got := Combine([]string{"a", "b"})
	if got != "**✈️ Flight info** (`v2`): a | b" {
		t.Fatalf("Combine = %q", got)
	}
}
