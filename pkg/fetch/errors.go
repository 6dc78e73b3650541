package fetch

import "fmt"

// NetworkError indicates a transport failure or a non-2xx/non-304 response
// while fetching a remote document
type NetworkError struct {
	URL        string
	StatusCode int    // zero for transport failures
	Snippet    string // leading bytes of the response body, for diagnostics
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d: %s", e.URL, e.StatusCode, e.Snippet)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ParseError indicates a structurally unparseable feed document
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %s: %v", e.URL, e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// DateError indicates an entry whose publish date couldn't be resolved by any
// fallback. It fails the whole fetch for that feed rather than dropping the
// entry, so feed corruption surfaces instead of hiding.
type DateError struct {
	GUID string
	Raw  string
	Err  error
}

func (e *DateError) Error() string {
	return fmt.Sprintf("resolve date for entry %q (raw %q): %v", e.GUID, e.Raw, e.Err)
}

func (e *DateError) Unwrap() error { return e.Err }
