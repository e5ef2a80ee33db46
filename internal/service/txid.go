package service

import (
	"crypto/rand"
	"encoding/binary"
)

// Transaction identifiers are 12-digit numbers so they survive round trips
// through systems that treat them as fixed-width strings.
const (
	idMin  uint64 = 100_000_000_000
	idSpan uint64 = 900_000_000_000
)

// IDSource produces candidate transaction identifiers. The storage layer's
// uniqueness constraint, not the source, guarantees global uniqueness.
type IDSource interface {
	Next() uint64
}

// IDGenerator draws uniformly random 12-digit identifiers.
type IDGenerator struct{}

func (IDGenerator) Next() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return idMin + binary.BigEndian.Uint64(b[:])%idSpan
}
