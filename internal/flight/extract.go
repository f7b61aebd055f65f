package flight

import "regexp"

// Airline code (2-3 letters, optional space or hyphen) plus 1-4 digits,
// or a bare 3-4 digit number.
var designatorPattern = regexp.MustCompile(`\b[A-Za-z]{2,3}[\s-]?\d{1,4}\b|\b\d{3,4}\b`)

// Extract returns the flight designators mentioned in text, in order.
func Extract(text string) []string {
	return designatorPattern.FindAllString(text, -1)
}
