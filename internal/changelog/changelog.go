// Package changelog exposes a document store's ordered change feed as a
// resumable stream of change events.
package changelog

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

// Operation is the kind of write that produced a change event.
type Operation string

const (
	OperationInsert  Operation = "insert"
	OperationUpdate  Operation = "update"
	OperationReplace Operation = "replace"
	OperationDelete  Operation = "delete"
)

// IsValid reports whether op is one of the handled operations.
func (op Operation) IsValid() bool {
	switch op {
	case OperationInsert, OperationUpdate, OperationReplace, OperationDelete:
		return true
	default:
		return false
	}
}

// Document is a decoded document image.
type Document map[string]any

// ChangeEvent describes one committed write to a watched collection.
// Before is nil when the store did not record a pre-image; After is nil
// for deletes.
type ChangeEvent struct {
	Collection string
	Operation  Operation
	Before     Document
	After      Document
	// Cursor resumes the feed immediately after this event.
	Cursor []byte
}

// Log opens change streams on collections.
type Log interface {
	// Open starts a stream after cursor, or at the current point when
	// cursor is nil.
	Open(ctx context.Context, collection string, cursor []byte) (Stream, error)
}

// Stream yields change events in commit order.
type Stream interface {
	Next(ctx context.Context) (*ChangeEvent, error)
	Close(ctx context.Context) error
}

// ErrCursorInvalid is wrapped into errors caused by an unusable resume cursor.
var ErrCursorInvalid = errors.New("change stream cursor is invalid")

// Server error codes reported when a resume point cannot be used.
const (
	codeInvalidResumeToken      = 260
	codeChangeStreamFatalError  = 280
	codeChangeStreamHistoryLost = 286
)

var cursorInvalidMessages = []string{
	"resume token was not found",
	"resume point may no longer be in the oplog",
	"ChangeStreamHistoryLost",
	"ChangeStreamFatalError",
}

// IsCursorInvalid reports whether err means the stream cannot resume from
// the supplied cursor.
func IsCursorInvalid(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCursorInvalid) {
		return true
	}

	var se mongo.ServerError
	if errors.As(err, &se) {
		for _, code := range []int{codeInvalidResumeToken, codeChangeStreamFatalError, codeChangeStreamHistoryLost} {
			if se.HasErrorCode(code) {
				return true
			}
		}
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range cursorInvalidMessages {
		if strings.Contains(msg, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}
