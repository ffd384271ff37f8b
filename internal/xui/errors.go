package xui

import "fmt"

// AuthError means the panel rejected our credentials. It is surfaced to
// admins via the connection test, never to end users, and never carries the
// credentials themselves.
type AuthError struct {
	Panel string
	Msg   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("panel %s: authentication failed: %s", e.Panel, e.Msg)
}

// UnavailableError means the panel could not be reached at all (DNS, refused
// connection, timeout). Orchestration treats the panel as degraded for the
// current run and retries on a later sweep or manual refresh.
type UnavailableError struct {
	Panel string
	Err   error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("panel %s: unreachable: %v", e.Panel, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// APIError is a reachable panel refusing a request: a non-200 status or a
// success=false body. Status is zero when the refusal came in a 200 body.
type APIError struct {
	Path   string
	Status int
	Msg    string
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("panel API %s: status %d: %s", e.Path, e.Status, e.Msg)
	}
	return fmt.Sprintf("panel API %s: %s", e.Path, e.Msg)
}
