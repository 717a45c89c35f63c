// Package authz decides which principals may read which records. Every
// persisted record names the data source it was imported from, and a
// principal may read it only when that source is among its grants.
package authz

import (
	"context"

	"github.com/IBM/arcade/pkg/store"
)

// Provenanced is implemented by records that carry provenance and are
// recorded in the access log.
type Provenanced interface {
	RecordKind() string
	RecordID() uint
	ProvenanceSourceID() uint
}

var (
	_ Provenanced = (*store.EphemerisRecord)(nil)
	_ Provenanced = (*store.ComplianceRecord)(nil)
)

// AccessRequest asks whether a principal may read data from a source.
type AccessRequest struct {
	PrincipalID uint
	SourceID    uint
}

// Authorizer checks whether a principal may read from a data source.
type Authorizer interface {
	Authorize(ctx context.Context, req AccessRequest) (bool, error)
}
