package provider

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrIPNotFound      = errors.New("no asn information found for ip")
	ErrAsnNotFound     = errors.New("no data found for asn")
	ErrRequestFailed   = errors.New("api request failed")
	ErrUnknownProvider = errors.New("unsupported asn provider")
)

// RequestError is returned for non-2xx responses. URL carries no query string.
type RequestError struct {
	URL    string
	Status int
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("api request to %s failed with status %d", e.URL, e.Status)
}

func (e *RequestError) Unwrap() error {
	return ErrRequestFailed
}

// clientSide reports 4xx statuses other than 429, which no retry will fix.
func (e *RequestError) clientSide() bool {
	return e.Status >= http.StatusBadRequest && e.Status < http.StatusInternalServerError &&
		e.Status != http.StatusTooManyRequests
}

func ipNotFound(ip string) error {
	return fmt.Errorf("%w: %s", ErrIPNotFound, ip)
}

func asnNotFound(asn int) error {
	return fmt.Errorf("%w: %d", ErrAsnNotFound, asn)
}
