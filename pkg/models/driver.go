package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Driver is the decoded `drivers(address)` contract tuple. Coordinates are
// kept as the decimal strings the contract stores; amounts stay in the
// contract's uint256 domain.
type Driver struct {
	Addr               common.Address `json:"addr"`
	Lat                string         `json:"lat"`
	Lon                string         `json:"lon"`
	PubKey             string         `json:"pub_key"`
	Updated            int64          `json:"updated"`
	Rider              common.Address `json:"rider"`
	Deposit            *big.Int       `json:"deposit"`
	Rating             uint8          `json:"rating"`
	RatingCount        *big.Int       `json:"rating_count"`
	RiderRating        uint8          `json:"rider_rating"`
	ProposedNewFare    *big.Int       `json:"proposed_new_fare"`
	HasProposedNewFare bool           `json:"has_proposed_new_fare"`
}

// Advertised reports whether the record belongs to a live advertisement.
// A zero address means the directory slot is empty.
func (d *Driver) Advertised() bool {
	return d != nil && d.Addr != (common.Address{})
}
