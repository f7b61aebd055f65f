package flight

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	SummaryTitle   = "✈️ Flight info"
	SummaryVersion = "v2"
)

// Summary renders info as one markdown line. With tracking set, a phrase
// relative to now is appended (departing, arriving or completed).
func Summary(info *Info, tracking bool, now time.Time) string {
	if info == nil {
		return ""
	}
	msg := fmt.Sprintf("[%s `%s`](%s) %s (`%s`) ➔ %s (`%s`)",
		info.Airline, info.Identifier, info.Link,
		info.Origin.Airport, info.Origin.IATA,
		info.Destination.Airport, info.Destination.IATA)
	if !tracking {
		return msg
	}
	if info.Origin.DepartureTime == nil || info.Destination.ArrivalTime == nil {
		return msg + " **Flight times not available**"
	}
	dep := time.Unix(*info.Origin.DepartureTime, 0)
	arr := time.Unix(*info.Destination.ArrivalTime, 0)
	switch {
	case now.Before(dep):
		return msg + fmt.Sprintf(" 🛫 Departing in about 🕙 **%s**", relative(now, dep))
	case now.Before(arr):
		return msg + fmt.Sprintf(" 🛬 Arriving in about 🕙 **%s**", relative(now, arr))
	default:
		return msg + fmt.Sprintf(" 🏙️ Flight completed about 🕙 **%s** ago", relative(arr, now))
	}
}

// Combine joins several summaries under the versioned title.
func Combine(lines []string) string {
	return fmt.Sprintf("**%s** (`%s`): %s", SummaryTitle, SummaryVersion, strings.Join(lines, " | "))
}

func relative(a, b time.Time) string {
	return strings.TrimSpace(humanize.RelTime(a, b, "", ""))
}
