package prayertimes

import (
	"errors"
	"fmt"
)

// GenericMessage is shown to users for every failure without a provider reason.
const GenericMessage = "Encountered an error while retrieving data. Please try again later."

var (
	ErrInvalidResponse = errors.New("prayertimes: invalid provider response")
	ErrNoTimes         = errors.New("prayertimes: no prayer times in response")
)

// QueryError is a provider rejection of the query itself, e.g. an unknown location.
type QueryError struct {
	Location string
	Reason   string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("prayertimes: query %q rejected: %s", e.Location, e.Reason)
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string { return fmt.Sprintf("prayertimes: HTTP %d", e.Code) }

// UserMessage maps a fetch error to the text shown to the subscriber.
func UserMessage(err error) string {
	var qe *QueryError
	if errors.As(err, &qe) && qe.Reason != "" {
		return qe.Reason
	}
	return GenericMessage
}
