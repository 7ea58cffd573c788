package service

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"taxicoin/chain"
	"taxicoin/messaging"
	"taxicoin/pkg/logger"
	"taxicoin/pkg/models"
	"taxicoin/storage"
)

// DriverService carries the driver side of the marketplace: advertising on
// chain, responding to job proposals over the channel, accepting a journey
// and completing it.
type DriverService interface {
	// Advertise publishes location and the driver's messaging public key,
	// escrowing whatever part of the driver deposit is still outstanding.
	Advertise(ctx context.Context, lat, lon string) (*chain.Receipt, error)
	RevokeAdvert(ctx context.Context) (*chain.Receipt, error)

	// QuoteProposal responds to a job proposal with an offered fare.
	QuoteProposal(ctx context.Context, riderPubKey string, fare int64) error
	// RejectProposal responds with the -1 rejection fare.
	RejectProposal(ctx context.Context, riderPubKey string) error

	AcceptJourney(ctx context.Context, rider common.Address) (*chain.Receipt, error)
	// CompleteJourney rates the rider and, once both parties have completed,
	// settles. The settled journey is appended to the local history.
	CompleteJourney(ctx context.Context, rating uint8) (*chain.Receipt, error)

	// ProposeFareAlteration stages the new fare on chain and notifies the
	// rider over the channel so they can confirm.
	ProposeFareAlteration(ctx context.Context, riderPubKey string, newFare *big.Int) error

	// PublicKey is the messaging public key riders address quotes to.
	PublicKey(ctx context.Context) (string, error)
}

type driverService struct {
	gw  chain.IContractGateway
	ch  messaging.IChannel
	stg storage.IStorage
	log logger.ILogger
}

func NewDriverService(gw chain.IContractGateway, ch messaging.IChannel, stg storage.IStorage, log logger.ILogger) DriverService {
	return &driverService{gw: gw, ch: ch, stg: stg, log: log}
}

func (s *driverService) Advertise(ctx context.Context, lat, lon string) (*chain.Receipt, error) {
	pubKey, err := s.ch.PublicKey(ctx)
	if err != nil {
		return nil, err
	}
	return s.gw.Advertise(ctx, lat, lon, pubKey)
}

func (s *driverService) RevokeAdvert(ctx context.Context) (*chain.Receipt, error) {
	return s.gw.RevokeAdvert(ctx)
}

func (s *driverService) QuoteProposal(ctx context.Context, riderPubKey string, fare int64) error {
	account, err := s.gw.Account(ctx)
	if err != nil {
		return err
	}
	return s.ch.Publish(ctx, messaging.KindQuote, riderPubKey, models.Quote{
		Address: strings.ToLower(account.Hex()),
		Fare:    fare,
	})
}

func (s *driverService) RejectProposal(ctx context.Context, riderPubKey string) error {
	return s.QuoteProposal(ctx, riderPubKey, -1)
}

func (s *driverService) AcceptJourney(ctx context.Context, rider common.Address) (*chain.Receipt, error) {
	return s.gw.AcceptJourney(ctx, rider)
}

func (s *driverService) CompleteJourney(ctx context.Context, rating uint8) (*chain.Receipt, error) {
	journey, err := s.gw.CurrentJourney(ctx)
	if err != nil {
		return nil, err
	}
	if journey == nil {
		return nil, &chain.SettlementError{Op: "completeJourney", Err: errNoJourney}
	}

	receipt, err := s.gw.CompleteJourney(ctx, rating)
	if err != nil {
		return nil, err
	}

	if s.stg != nil {
		rec := &models.JourneyRecord{
			Role:        "driver",
			Counterpart: strings.ToLower(journey.Rider.Addr.Hex()),
			Fare:        journey.Rider.Fare.String(),
			Rating:      rating,
			CompletedAt: time.Now().UTC(),
		}
		if err := s.stg.Journey().Record(ctx, rec); err != nil {
			s.log.Warning("failed to record journey history", logger.Error(err))
		}
	}

	return receipt, nil
}

func (s *driverService) ProposeFareAlteration(ctx context.Context, riderPubKey string, newFare *big.Int) error {
	if _, err := s.gw.ProposeFareAlteration(ctx, newFare); err != nil {
		return err
	}

	account, err := s.gw.Account(ctx)
	if err != nil {
		return err
	}
	// Best-effort notification; the on-chain proposal already stands and the
	// rider confirms against contract state, not the message.
	err = s.ch.Publish(ctx, messaging.KindNewFare, riderPubKey, models.FareProposal{
		Address: strings.ToLower(account.Hex()),
		NewFare: newFare.Int64(),
	})
	if err != nil {
		s.log.Warning("fare proposal staged but notification failed", logger.Error(err))
	}
	return nil
}

func (s *driverService) PublicKey(ctx context.Context) (string, error) {
	return s.ch.PublicKey(ctx)
}
