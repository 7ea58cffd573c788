package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"taxicoin/pkg/models"
)

// ZeroAddress is the contract's sentinel "no address" value, used to
// terminate the advertised-driver list and to mark unmatched parties.
var ZeroAddress = common.Address{}

// ErrNoProvider means no usable settlement-chain endpoint could be resolved
// at construction. Fatal, never retried.
var ErrNoProvider = errors.New("chain: no provider set")

// SettlementError is a contract call the node accepted but the contract
// reverted, or refused outright (insufficient funds, precondition not met,
// caller not a party to the journey). It is surfaced to the caller and never
// retried internally: resubmitting a write without re-reading on-chain state
// risks double-spending a deposit.
type SettlementError struct {
	Op  string
	Err error
}

func (e *SettlementError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("chain: %s rejected by contract", e.Op)
	}
	return fmt.Sprintf("chain: %s: %v", e.Op, e.Err)
}

func (e *SettlementError) Unwrap() error {
	return e.Err
}

// IsSettlementRejected reports whether err is a contract-level rejection.
func IsSettlementRejected(err error) bool {
	var se *SettlementError
	return errors.As(err, &se)
}

// Receipt is the settlement confirmation a successful write resolves with.
type Receipt struct {
	TxHash  common.Hash
	GasUsed uint64
}

// IContractGateway is the typed façade over the escrow contract. Writes wait
// for the transaction to be mined and return the receipt; the contract is
// authoritative for every precondition, the gateway only surfaces its
// rejection.
type IContractGateway interface {
	// Advertise publishes the driver's location and messaging public key,
	// attaching whatever part of the driver deposit is still outstanding.
	Advertise(ctx context.Context, lat, lon string, pubKey string) (*Receipt, error)
	// RevokeAdvert invalidates a live advertisement. No deposit refund.
	RevokeAdvert(ctx context.Context) (*Receipt, error)
	// ListDrivers walks the advertised-driver list from the zero sentinel,
	// in contract order. Empty directory yields an empty slice, not an error.
	ListDrivers(ctx context.Context) ([]*models.Driver, error)

	// CreateJourney escrows the rider deposit plus the agreed fare against
	// the given advertised driver.
	CreateJourney(ctx context.Context, driver common.Address, fare *big.Int) (*Receipt, error)
	// AcceptJourney pairs the calling driver with the rider that designated
	// them.
	AcceptJourney(ctx context.Context, rider common.Address) (*Receipt, error)
	// CompleteJourney records a rating of the counterpart; once both parties
	// have called it the contract settles deposits, pays the fare and updates
	// both ratings.
	CompleteJourney(ctx context.Context, rating uint8) (*Receipt, error)

	ProposeFareAlteration(ctx context.Context, newFare *big.Int) (*Receipt, error)
	// ConfirmFareAlteration escrows the fare delta and commits the new fare.
	ConfirmFareAlteration(ctx context.Context, newFare *big.Int) (*Receipt, error)

	Driver(ctx context.Context, addr common.Address) (*models.Driver, error)
	Rider(ctx context.Context, addr common.Address) (*models.Rider, error)
	DriverDeposit(ctx context.Context) (*big.Int, error)
	RiderDeposit(ctx context.Context) (*big.Int, error)
	UserType(ctx context.Context, addr common.Address) (models.UserType, error)
	Account(ctx context.Context) (common.Address, error)
	Balance(ctx context.Context) (*big.Int, error)

	// CurrentJourney cross-references the caller's Driver/Rider pair. Nil
	// when the caller is unmatched (NONE or merely advertised DRIVER).
	CurrentJourney(ctx context.Context) (*models.Journey, error)

	Close()
}
