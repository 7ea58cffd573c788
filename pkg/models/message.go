package models

// Negotiation message bodies, exchanged as JSON over the encrypted broadcast
// channel. Addresses travel as lowercase hex strings so the wire format stays
// identical across client implementations.
//
// SenderKey is not part of the wire body: it is the signing public key taken
// from the inbound envelope, and it is the only address a reply can be
// encrypted to.

// JobProposal is sent by a rider to an advertised driver's public key.
// Pickup and dropoff are [lat, lon] pairs.
type JobProposal struct {
	Address   string     `json:"address"`
	Pickup    [2]float64 `json:"pickup"`
	Dropoff   [2]float64 `json:"dropoff"`
	SenderKey string     `json:"-"`
}

// Quote is a driver's response to a job proposal. A fare of -1 means the
// proposal was rejected.
type Quote struct {
	Address   string `json:"address"`
	Fare      int64  `json:"fare"`
	SenderKey string `json:"-"`
}

// FareProposal notifies the rider that the driver wants to renegotiate the
// fare mid-journey. The change only takes effect once confirmed on-chain.
type FareProposal struct {
	Address   string `json:"address"`
	NewFare   int64  `json:"new_fare"`
	SenderKey string `json:"-"`
}

// Notification is the body of created/accepted/completed journey
// notifications: only the sender's address.
type Notification struct {
	Address   string `json:"address"`
	SenderKey string `json:"-"`
}
