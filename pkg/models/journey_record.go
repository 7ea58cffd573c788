package models

import "time"

// JourneyRecord is a locally persisted settled journey. Fare is kept as the
// decimal string of the uint256 amount.
type JourneyRecord struct {
	ID          int64     `json:"id"`
	Role        string    `json:"role"` // "driver" or "rider"
	Counterpart string    `json:"counterpart"`
	Fare        string    `json:"fare"`
	Rating      uint8     `json:"rating"` // rating given to the counterpart
	CompletedAt time.Time `json:"completed_at"`
}
