package runid

import (
	"github.com/oklog/ulid/v2"
)

// ULIDGenerator generates ULID-based run IDs, sortable by creation time so
// report directories line up chronologically.
type ULIDGenerator struct{}

// New creates a new ULIDGenerator.
func New() *ULIDGenerator {
	return &ULIDGenerator{}
}

// Generate generates a new ULID.
func (g *ULIDGenerator) Generate() string {
	return ulid.Make().String()
}
