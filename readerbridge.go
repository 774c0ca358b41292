package readerbridge

import "github.com/google/uuid"

// Value is a wire value exchanged with the client: nil, bool, integers,
// float64, string, []byte, []Value or map[string]Value.
type Value = any

// IsolateID identifies the remote execution context that issued a request.
// Progress tokens and outbound notifications are scoped by it.
type IsolateID uuid.UUID

// NewIsolateID returns a fresh random isolate identity.
func NewIsolateID() IsolateID {
	return IsolateID(uuid.New())
}

// ParseIsolateID parses the canonical textual form produced by String.
func ParseIsolateID(s string) (IsolateID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return IsolateID{}, err
	}
	return IsolateID(id), nil
}

func (id IsolateID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id is the zero identity.
func (id IsolateID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}
