package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"os"

	"github.com/klauern/agentsync/internal/envelope"
	"github.com/klauern/agentsync/internal/gist"
	"github.com/klauern/agentsync/internal/payload"
)

// Kind classifies a sync failure by what the user can do about it.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuth
	KindDecryption
	KindTransport
	KindStorage
	KindConflict
	KindSchema
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindDecryption:
		return "decryption"
	case KindTransport:
		return "transport"
	case KindStorage:
		return "storage"
	case KindConflict:
		return "conflict"
	case KindSchema:
		return "schema"
	default:
		return "unknown"
	}
}

// ErrConflict is wrapped by conflict errors raised when a pull would
// overwrite differing local files and nobody confirmed it.
var ErrConflict = errors.New("local files differ from the remote copy")

// ErrNoProviders is returned by Push when no provider is installed.
var ErrNoProviders = errors.New("no installed providers to push")

// ErrNoRemote is returned by Pull and Status when no sync gist exists yet.
var ErrNoRemote = errors.New("no sync gist found")

// Error is a classified sync failure.
type Error struct {
	Kind        Kind
	Op          string
	ContainerID string
	Err         error
}

func (e *Error) Error() string {
	if e.ContainerID != "" {
		return fmt.Sprintf("%s (gist %s): %v", e.Op, e.ContainerID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Suggestion returns a short recovery hint for the user.
func (e *Error) Suggestion() string {
	if errors.Is(e.Err, gist.ErrNotFound) {
		return "The sync gist was not found. Check AGENTSYNC_GIST_ID, or run 'agentsync push' to create a new one."
	}
	if errors.Is(e.Err, ErrNoRemote) {
		return "Nothing has been pushed yet. Run 'agentsync push' on a device with your configs."
	}
	if errors.Is(e.Err, gist.ErrNoDocument) {
		return "The gist does not contain an agentsync document. Run 'agentsync push' from a device with your configs."
	}
	var apiErr *gist.APIError
	if errors.As(e.Err, &apiErr) && apiErr.RateLimited {
		return "GitHub rate limit reached. Wait a few minutes and try again."
	}

	switch e.Kind {
	case KindAuth:
		return "Check your GitHub token: it must be valid and carry the 'gist' scope. Run 'agentsync init' to update it."
	case KindDecryption:
		return "Check your passphrase: it must match the one used on the device that pushed."
	case KindTransport:
		return "Could not reach GitHub. Check your network connection and try again."
	case KindStorage:
		return "Check that the config directories exist and are writable."
	case KindConflict:
		return "Review the differences with 'agentsync pull', or pass --force to take the remote copy."
	case KindSchema:
		return "The remote document was written by a newer agentsync. Upgrade agentsync on this device."
	default:
		return ""
	}
}

// Classify wraps err in an *Error according to its cause. nil stays nil,
// and cancellation errors and errors that are already classified are
// returned unchanged.
func Classify(op, containerID string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Kind: classify(err), Op: op, ContainerID: containerID, Err: err}
}

func classify(err error) Kind {
	var apiErr *gist.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized:
			return KindAuth
		case apiErr.StatusCode == http.StatusForbidden && !apiErr.RateLimited:
			return KindAuth
		default:
			return KindTransport
		}
	}

	switch {
	case errors.Is(err, gist.ErrMissingScope):
		return KindAuth
	case errors.Is(err, envelope.ErrDecryption):
		return KindDecryption
	case errors.Is(err, envelope.ErrUnsupportedVersion),
		errors.Is(err, payload.ErrUnsupportedVersion),
		errors.Is(err, gist.ErrNoDocument):
		return KindSchema
	case errors.Is(err, ErrConflict):
		return KindConflict
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return KindTransport
	}

	var pathErr *fs.PathError
	var linkErr *os.LinkError
	if errors.As(err, &pathErr) || errors.As(err, &linkErr) {
		return KindStorage
	}
	return KindUnknown
}

// KindOf returns the Kind of err, or KindUnknown when it is not an *Error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// SuggestionFor returns the recovery hint carried by err, if any.
func SuggestionFor(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Suggestion()
	}
	return ""
}

func storageError(op, containerID string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &Error{Kind: KindStorage, Op: op, ContainerID: containerID, Err: err}
}
