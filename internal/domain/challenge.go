package domain

import "time"

// Challenge is a single-use numeric authorization code. It lives in a
// TTL-capable store keyed by subject and is invalidated on the first
// successful verification or discarded once expired.
type Challenge struct {
	Code      string    `json:"code"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (c Challenge) ExpiredAt(t time.Time) bool {
	return t.After(c.ExpiresAt)
}
