package backend

import (
	stderrors "errors"
	"fmt"

	"github.com/go-go-golems/servermark/pkg/protocol"
)

var ErrUnsupported = stderrors.New(protocol.ErrUnsupported)

// OpError is a command failure reported by the backend (or synthesized by the
// client when the transport breaks).
type OpError struct {
	Backend string
	Command string
	Code    string
	Message string
	Details map[string]any
}

func (e *OpError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: backend=%q command=%q", e.Code, e.Backend, e.Command)
	}
	return fmt.Sprintf("%s: backend=%q command=%q: %s", e.Code, e.Backend, e.Command, e.Message)
}

func (e *OpError) Is(target error) bool {
	if target == ErrUnsupported {
		return e.Code == protocol.ErrUnsupported
	}
	return false
}

// Message turns a command failure into the text shown to users.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var opErr *OpError
	if stderrors.As(err, &opErr) && opErr.Message != "" {
		return opErr.Message
	}
	return err.Error()
}
