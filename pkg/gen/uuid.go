package gen

import (
	"github.com/google/uuid"
)

// IDGenerator produces row identifiers. Version 7 UUIDs sort by creation
// time, which keeps "most recent first" listings stable on equal timestamps.
type IDGenerator func() uuid.UUID

func UUID() IDGenerator {
	return func() uuid.UUID {
		return uuid.Must(uuid.NewV7())
	}
}

func (g IDGenerator) Next() uuid.UUID {
	if g == nil {
		return uuid.Nil
	}

	return g()
}

func (g IDGenerator) NextString() string {
	return g.Next().String()
}
