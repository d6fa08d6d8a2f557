package remap

import (
	"io"

	"github.com/google/uuid"
)

// Generator produces opaque surrogate identifiers.
type Generator interface {
	Generate() (string, error)
}

// UUIDGenerator produces random (version 4) UUIDs.
type UUIDGenerator struct {
	rand io.Reader
}

func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

// NewUUIDGeneratorFromReader draws randomness from r instead of the
// operating system's entropy source.
func NewUUIDGeneratorFromReader(r io.Reader) *UUIDGenerator {
	return &UUIDGenerator{rand: r}
}

func (g *UUIDGenerator) Generate() (string, error) {
	var (
		u   uuid.UUID
		err error
	)
	if g.rand != nil {
		u, err = uuid.NewRandomFromReader(g.rand)
	} else {
		u, err = uuid.NewRandom()
	}
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
