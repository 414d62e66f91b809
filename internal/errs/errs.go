// Package errs defines the typed errors surfaced by the catalog and
// extraction pipeline. Callers branch on Kind (via the Is* helpers)
// rather than on message text.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind string

const (
	KindNetwork    Kind = "network"
	KindTimeout    Kind = "timeout"
	KindParse      Kind = "parse"
	KindNoResults  Kind = "no_results"
	KindScraping   Kind = "scraping"
	KindDecryption Kind = "decryption"
	KindHLS        Kind = "hls"
	KindConfig     Kind = "config"
)

// Error is the pipeline error type.
type Error struct {
	Kind     Kind
	Message  string
	Status   int    // HTTP status, network errors only
	URL      string // request URL, network/timeout/parse errors
	Selector string // scraping errors
	Query    string // no-results errors
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	switch {
	case e.Status != 0 && e.URL != "":
		msg = fmt.Sprintf("%s (status %d, %s)", msg, e.Status, e.URL)
	case e.URL != "":
		msg = fmt.Sprintf("%s (%s)", msg, e.URL)
	case e.Selector != "":
		msg = fmt.Sprintf("%s (selector %q)", msg, e.Selector)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Network reports a non-2xx response or transport failure.
func Network(status int, url string, err error) error {
	msg := "request failed"
	if status != 0 {
		msg = fmt.Sprintf("HTTP %d", status)
	}
	return &Error{Kind: KindNetwork, Message: msg, Status: status, URL: url, Err: err}
}

// Timeout reports a request that produced no response in time.
func Timeout(url string, err error) error {
	return &Error{Kind: KindTimeout, Message: "Request timeout", URL: url, Err: err}
}

// Parse reports a response body that could not be decoded.
func Parse(url string, err error) error {
	return &Error{Kind: KindParse, Message: "invalid response body", URL: url, Err: err}
}

func NoResults(query string) error {
	return &Error{Kind: KindNoResults, Message: fmt.Sprintf("no results found for %q", query), Query: query}
}

func Scraping(message, selector string) error {
	return &Error{Kind: KindScraping, Message: message, Selector: selector}
}

func Decryption(message string, err error) error {
	return &Error{Kind: KindDecryption, Message: message, Err: err}
}

func HLS(message string) error {
	return &Error{Kind: KindHLS, Message: message}
}

func Config(message string) error {
	return &Error{Kind: KindConfig, Message: message}
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNetwork reports whether err is a transport failure. Timeouts count.
func IsNetwork(err error) bool {
	k := KindOf(err)
	return k == KindNetwork || k == KindTimeout
}

func IsTimeout(err error) bool    { return KindOf(err) == KindTimeout }
func IsParse(err error) bool      { return KindOf(err) == KindParse }
func IsNoResults(err error) bool  { return KindOf(err) == KindNoResults }
func IsScraping(err error) bool   { return KindOf(err) == KindScraping }
func IsDecryption(err error) bool { return KindOf(err) == KindDecryption }
func IsHLS(err error) bool        { return KindOf(err) == KindHLS }

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}
