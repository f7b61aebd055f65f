package lookup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"flightbroker/internal/flight"
)

const trackpollMarker = "var trackpollGlobals"

var errNoTrackpoll = errors.New("trackpoll globals not found")

// trackpollToken finds the inline script assigning trackpollGlobals and
// returns its TOKEN.
func trackpollToken(page []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", err
	}
	script := findScript(doc, trackpollMarker)
	if script == "" {
		return "", errNoTrackpoll
	}
	rest := script[strings.Index(script, trackpollMarker)+len(trackpollMarker):]
	eq := strings.Index(rest, "=")
	if eq < 0 {
		return "", errNoTrackpoll
	}

	var globals struct {
		Token string `json:"TOKEN"`
	}
	// The decoder stops after the object, so a trailing ";" or further
	// statements are ignored.
	if err := json.NewDecoder(strings.NewReader(rest[eq+1:])).Decode(&globals); err != nil {
		return "", fmt.Errorf("decode trackpoll globals: %w", err)
	}
	if globals.Token == "" {
		return "", errNoTrackpoll
	}
	return globals.Token, nil
}

func findScript(n *html.Node, marker string) string {
	if n.Type == html.ElementNode && n.Data == "script" {
		var b strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
		if s := b.String(); strings.Contains(s, marker) {
			return s
		}
		return ""
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if s := findScript(c, marker); s != "" {
			return s
		}
	}
	return ""
}

type trackpollPlace struct {
	FriendlyName string `json:"friendlyName"`
	IATA         string `json:"iata"`
}

type trackpollTimes struct {
	Scheduled *int64 `json:"scheduled"`
}

type trackpollFlight struct {
	Airline *struct {
		ShortName string `json:"shortName"`
	} `json:"airline"`
	CodeShare *struct {
		Ident string `json:"ident"`
	} `json:"codeShare"`
	Origin       *trackpollPlace `json:"origin"`
	Destination  *trackpollPlace `json:"destination"`
	TakeoffTimes *trackpollTimes `json:"takeoffTimes"`
	LandingTimes *trackpollTimes `json:"landingTimes"`
}

// parseTrackpoll maps the first entry of "flights" (document order) to
// flight.Info, filling the source's gaps with placeholder values.
func parseTrackpoll(body []byte, ident, link string) (*flight.Info, error) {
	var doc struct {
		Flights json.RawMessage `json:"flights"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode trackpoll: %w", err)
	}
	raw, err := firstValue(doc.Flights)
	if err != nil {
		return nil, err
	}
	var f trackpollFlight
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode trackpoll flight: %w", err)
	}

	info := &flight.Info{
		Airline:    "Unknown Airline",
		Identifier: ident,
		Link:       link,
		Origin:     flight.Departure{Airport: "Unknown Origin", IATA: "???"},
		Destination: flight.Arrival{
			Airport: "Unknown Destination",
			IATA:    "???",
		},
	}
	if f.Airline != nil && f.Airline.ShortName != "" {
		info.Airline = f.Airline.ShortName
	}
	if f.CodeShare != nil && f.CodeShare.Ident != "" {
		info.Identifier = f.CodeShare.Ident
	}
	if p := f.Origin; p != nil {
		info.Origin.Airport = orDefault(p.FriendlyName, info.Origin.Airport)
		info.Origin.IATA = orDefault(p.IATA, info.Origin.IATA)
	}
	if p := f.Destination; p != nil {
		info.Destination.Airport = orDefault(p.FriendlyName, info.Destination.Airport)
		info.Destination.IATA = orDefault(p.IATA, info.Destination.IATA)
	}
	if f.TakeoffTimes != nil {
		info.Origin.DepartureTime = f.TakeoffTimes.Scheduled
	}
	if f.LandingTimes != nil {
		info.Destination.ArrivalTime = f.LandingTimes.Scheduled
	}
	return info, nil
}

// firstValue returns the first member value of a JSON object, or
// ErrNotFound for null, empty objects and empty first members.
func firstValue(obj json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(obj)) == 0 || bytes.Equal(bytes.TrimSpace(obj), []byte("null")) {
		return nil, ErrNotFound
	}
	dec := json.NewDecoder(bytes.NewReader(obj))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, fmt.Errorf("decode trackpoll: flights is not an object")
	}
	if !dec.More() {
		return nil, ErrNotFound
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode trackpoll: %w", err)
	}
	var v json.RawMessage
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode trackpoll: %w", err)
	}
	switch t := string(bytes.TrimSpace(v)); t {
	case "null", "{}", "[]", `""`, "false", "0":
		return nil, ErrNotFound
	}
	return v, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
