package broker

import (
	"encoding/json"
	"sync"
	"time"
)

type State int32

const (
	Pending State = iota
	InProgress
	Completed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case InProgress:
		return "in_progress"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// NotFoundMessage is the error payload for every failed lookup.
const NotFoundMessage = "Flight data not found or could not be scraped."

// Result is either a success value or an error message, never both.
type Result struct {
	Value any
	Err   string
}

func ErrorResult(msg string) Result { return Result{Err: msg} }

func (r Result) OK() bool { return r.Err == "" }

// MarshalJSON renders the success value as-is, or {"error": msg}.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Err != "" {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{r.Err})
	}
	return json.Marshal(r.Value)
}

// Source tells where a result came from.
type Source string

const (
	SourceCache  Source = "cache"
	SourceLookup Source = "lookup"
)

// Item is one pending or resolved lookup.
// RequestID is shared by every item of a batch.
type Item struct {
	RequestID  string
	Key        string
	Raw        string
	EnqueuedAt time.Time

	mu          sync.Mutex
	state       State
	result      Result
	source      Source
	completedAt time.Time
	onDone      func()
}

func NewItem(requestID, key, raw string) *Item {
	return &Item{RequestID: requestID, Key: key, Raw: raw}
}

func (it *Item) State() State {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.state
}

// Result returns the resolution; ok is false until the item is Completed.
func (it *Item) Result() (r Result, ok bool) {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.result, it.state == Completed
}

func (it *Item) Source() Source {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.source
}

func (it *Item) CompletedAt() time.Time {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.completedAt
}

// transition moves the item from -> to. It reports false if the item is
// not in state from.
func (it *Item) transition(from, to State) bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.state != from {
		return false
	}
	it.state = to
	return true
}

func (it *Item) complete(r Result, src Source, at time.Time) (func(), bool) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.state != InProgress {
		return nil, false
	}
	it.state = Completed
	it.result = r
	it.source = src
	it.completedAt = at
	return it.onDone, true
}
