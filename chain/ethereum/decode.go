package ethereum

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"taxicoin/pkg/models"
)

// Tuple layouts follow the contract's struct field order; see the embedded
// ABI. Decoding is strict so a contract upgrade that reorders fields fails
// loudly instead of producing garbage amounts.

func driverFromTuple(out []interface{}) (*models.Driver, error) {
	if len(out) != 12 {
		return nil, fmt.Errorf("ethereum: driver tuple has %d fields, want 12", len(out))
	}

	driver := &models.Driver{}
	var ok bool

	if driver.Addr, ok = out[0].(common.Address); !ok {
		return nil, tupleFieldError("driver", 0, out[0])
	}
	if driver.Lat, ok = out[1].(string); !ok {
		return nil, tupleFieldError("driver", 1, out[1])
	}
	if driver.Lon, ok = out[2].(string); !ok {
		return nil, tupleFieldError("driver", 2, out[2])
	}
	if driver.PubKey, ok = out[3].(string); !ok {
		return nil, tupleFieldError("driver", 3, out[3])
	}
	updated, ok := out[4].(*big.Int)
	if !ok {
		return nil, tupleFieldError("driver", 4, out[4])
	}
	driver.Updated = updated.Int64()
	if driver.Rider, ok = out[5].(common.Address); !ok {
		return nil, tupleFieldError("driver", 5, out[5])
	}
	if driver.Deposit, ok = out[6].(*big.Int); !ok {
		return nil, tupleFieldError("driver", 6, out[6])
	}
	if driver.Rating, ok = out[7].(uint8); !ok {
		return nil, tupleFieldError("driver", 7, out[7])
	}
	if driver.RatingCount, ok = out[8].(*big.Int); !ok {
		return nil, tupleFieldError("driver", 8, out[8])
	}
	if driver.RiderRating, ok = out[9].(uint8); !ok {
		return nil, tupleFieldError("driver", 9, out[9])
	}
	if driver.ProposedNewFare, ok = out[10].(*big.Int); !ok {
		return nil, tupleFieldError("driver", 10, out[10])
	}
	if driver.HasProposedNewFare, ok = out[11].(bool); !ok {
		return nil, tupleFieldError("driver", 11, out[11])
	}

	return driver, nil
}

func riderFromTuple(out []interface{}) (*models.Rider, error) {
	if len(out) != 7 {
		return nil, fmt.Errorf("ethereum: rider tuple has %d fields, want 7", len(out))
	}

	rider := &models.Rider{}
	var ok bool

	if rider.Addr, ok = out[0].(common.Address); !ok {
		return nil, tupleFieldError("rider", 0, out[0])
	}
	if rider.Driver, ok = out[1].(common.Address); !ok {
		return nil, tupleFieldError("rider", 1, out[1])
	}
	if rider.Fare, ok = out[2].(*big.Int); !ok {
		return nil, tupleFieldError("rider", 2, out[2])
	}
	if rider.Deposit, ok = out[3].(*big.Int); !ok {
		return nil, tupleFieldError("rider", 3, out[3])
	}
	if rider.Rating, ok = out[4].(uint8); !ok {
		return nil, tupleFieldError("rider", 4, out[4])
	}
	if rider.RatingCount, ok = out[5].(*big.Int); !ok {
		return nil, tupleFieldError("rider", 5, out[5])
	}
	if rider.DriverRating, ok = out[6].(uint8); !ok {
		return nil, tupleFieldError("rider", 6, out[6])
	}

	return rider, nil
}

func tupleFieldError(kind string, index int, value interface{}) error {
	return fmt.Errorf("ethereum: unexpected %s tuple field %d: %T", kind, index, value)
}
