package flight

// Info is the success payload of a lookup.
// Times are unix seconds; nil when the source did not publish them.
type Info struct {
	Airline     string    `json:"airline"`
	Identifier  string    `json:"identifier"`
	Link        string    `json:"link"`
	Origin      Departure `json:"origin"`
	Destination Arrival   `json:"destination"`
}

type Departure struct {
	Airport       string `json:"airport"`
	IATA          string `json:"iata"`
	DepartureTime *int64 `json:"departure_time"`
}

type Arrival struct {
	Airport     string `json:"airport"`
	IATA        string `json:"iata"`
	ArrivalTime *int64 `json:"arrival_time"`
}
