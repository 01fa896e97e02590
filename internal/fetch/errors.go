package fetch

import "fmt"

// FetchError reports a transport-level failure while acquiring a source:
// network errors, HTTP error statuses, or a failing git invocation. It is
// never retried automatically; retrying could mask an integrity failure as a
// transient one.
type FetchError struct {
	Module string
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("module %q: failed to fetch %s: %v", e.Module, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IntegrityError reports that acquired bytes do not match the manifest's
// declaration: an archive hashing to a different digest, or a git checkout
// resolving to a different commit than the pin.
type IntegrityError struct {
	Module string
	URL    string
	Want   string
	Got    string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("module %q: integrity mismatch for %s: declared %s, got %s", e.Module, e.URL, e.Want, e.Got)
}
