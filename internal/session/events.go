package session

import "context"

// Event is one inbound user action.
type Event interface {
	kind() string
}

type Text struct {
	Body string
}

// Photo carries its caption and a lazy fetch of the image bytes, so photos
// rejected before upload are never downloaded.
type Photo struct {
	Caption string
	Fetch   func(ctx context.Context) ([]byte, error)
}

type ButtonPress struct {
	Token string
}

func (Text) kind() string { return "text" }
func (Photo) kind() string { return "photo" }
func (ButtonPress) kind() string { return "button" }

// Button tokens.
const (
	TokenStart    = "start"
	TokenFinish   = "finish"
	TokenUndoLast = "undo_last"
	TokenStatus   = "status"
	tokenTarget   = "target:"
	tokenSubUnit  = "sub:"
	tokenUndo     = "undo:"
)

// TargetToken builds the button payload for a target. The catalog caps label
// length so that payloads stay within the callback data limit.
func TargetToken(label string) string { return tokenTarget + label }

func SubUnitToken(label string) string { return tokenSubUnit + label }

func UndoToken(id string) string { return tokenUndo + id }
