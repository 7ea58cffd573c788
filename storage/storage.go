package storage

import (
	"context"

	"taxicoin/pkg/models"
)

// IStorage is the client's local store: the messaging identity key, so the
// same public key survives restarts, and a history of settled journeys.
// Contract state is never cached here; the chain stays authoritative.
type IStorage interface {
	Identity() IIdentityStorage
	Journey() IJourneyStorage
	Close()
}

type IIdentityStorage interface {
	// LoadKey returns the saved messaging private key, or empty when none
	// has been saved yet.
	LoadKey(ctx context.Context) (string, error)
	SaveKey(ctx context.Context, privateKey string) error
}

type IJourneyStorage interface {
	Record(ctx context.Context, rec *models.JourneyRecord) error
	List(ctx context.Context) ([]*models.JourneyRecord, error)
}
