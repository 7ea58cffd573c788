package models

// UserType mirrors the contract's getUserType mapping. It is always derived
// from contract state, never cached on its own.
type UserType uint8

const (
	UserTypeNone         UserType = 0 // no deposit, no journey
	UserTypeDriver       UserType = 1 // advertised, unmatched
	UserTypeActiveDriver UserType = 2 // matched with a rider
	UserTypeRider        UserType = 3 // matched with a driver
)

func (t UserType) String() string {
	switch t {
	case UserTypeNone:
		return "none"
	case UserTypeDriver:
		return "driver"
	case UserTypeActiveDriver:
		return "active_driver"
	case UserTypeRider:
		return "rider"
	default:
		return "unknown"
	}
}
