package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Rider is the decoded `riders(address)` contract tuple.
type Rider struct {
	Addr         common.Address `json:"addr"`
	Driver       common.Address `json:"driver"`
	Fare         *big.Int       `json:"fare"`
	Deposit      *big.Int       `json:"deposit"`
	Rating       uint8          `json:"rating"`
	RatingCount  *big.Int       `json:"rating_count"`
	DriverRating uint8          `json:"driver_rating"`
}

// Journey pairs the driver and rider records whose address fields reference
// each other. It is derived from contract state on demand, never stored.
type Journey struct {
	Driver *Driver `json:"driver"`
	Rider  *Rider  `json:"rider"`
}
