// Package idgen generates the unique identifiers used for items,
// reservations, orders and bus messages.
package idgen

import "github.com/google/uuid"

// Generator mints new identifiers. Production code uses UUIDGenerator;
// tests can substitute a sequential generator for deterministic output.
type Generator interface {
	NewID() string
}

// UUIDGenerator is the production Generator, backed by google/uuid.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string {
	return uuid.New().String()
}

// Sequential is a deterministic Generator for tests: it returns
// "<prefix>-1", "<prefix>-2", ... on successive calls.
type Sequential struct {
	Prefix string
	n      int
}

func (s *Sequential) NewID() string {
	s.n++
	if s.Prefix == "" {
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte{byte(s.n)}).String()
	}
	return s.Prefix + "-" + itoa(s.n)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
