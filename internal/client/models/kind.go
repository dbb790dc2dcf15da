// Package models defines the client-side data model: entity kinds, whole
// records as cached and exchanged with the API, and pending queue actions.
package models

import (
	"fmt"

	"github.com/dmitrijs2005/silosync/internal/common"
)

// Kind names one entity collection. It doubles as the REST collection name
// and the local cache table name.
type Kind string

const (
	KindClients    Kind = "clients"
	KindDrivers    Kind = "drivers"
	KindSilos      Kind = "silos"
	KindCereals    Kind = "cereals"
	KindCompanies  Kind = "companies"
	KindOperations Kind = "operations"
	KindUsers      Kind = "users"
)

var allKinds = []Kind{
	KindClients,
	KindDrivers,
	KindSilos,
	KindCereals,
	KindCompanies,
	KindOperations,
	KindUsers,
}

var singular = map[Kind]string{
	KindClients:    "client",
	KindDrivers:    "driver",
	KindSilos:      "silo",
	KindCereals:    "cereal",
	KindCompanies:  "company",
	KindOperations: "operation",
	KindUsers:      "user",
}

// AllKinds returns every known kind in a stable order.
func AllKinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// ParseKind validates s against the closed set of kinds.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := singular[k]; !ok {
		return "", fmt.Errorf("%w: %q", common.ErrUnknownKind, s)
	}
	return k, nil
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	_, ok := singular[k]
	return ok
}

// Singular is the JSON key wrapping a single record in API responses.
func (k Kind) Singular() string {
	return singular[k]
}

// Table is the local cache table holding records of this kind.
func (k Kind) Table() string {
	return string(k)
}

// CacheKey is the metadata key under which the last full refresh time is kept.
func (k Kind) CacheKey() string {
	return "cache_" + string(k)
}

func (k Kind) String() string {
	return string(k)
}
