package model

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewStoreID generates a new store identifier. The ULID is lower-cased so the
// id doubles as a valid DNS label for the store's cluster namespace.
func NewStoreID() string {
	return "store-" + strings.ToLower(ulid.Make().String())
}
