package whisper

import (
	"github.com/ethereum/go-ethereum/common/hexutil"

	"taxicoin/messaging"
)

// Topic is the fixed 4-byte ASCII tag identifying a message kind on the
// wire. The values must match every other client implementation exactly.
type Topic [4]byte

func (t Topic) hex() string {
	return hexutil.Encode(t[:])
}

var (
	TopicJob       = Topic{'j', 'o', 'b', ' '}
	TopicQuote     = Topic{'q', 'u', 'o', 't'}
	TopicCreated   = Topic{'c', 'r', 'e', 'a'}
	TopicAccepted  = Topic{'a', 'c', 'c', 'p'}
	TopicLocation  = Topic{'l', 'c', 't', 'n'}
	TopicCompleted = Topic{'c', 'm', 'p', 'l'}
	TopicNewFare   = Topic{'n', 'f', 'a', 'r'}
)

var kindTopics = map[messaging.Kind]Topic{
	messaging.KindJob:       TopicJob,
	messaging.KindQuote:     TopicQuote,
	messaging.KindCreated:   TopicCreated,
	messaging.KindAccepted:  TopicAccepted,
	messaging.KindLocation:  TopicLocation,
	messaging.KindCompleted: TopicCompleted,
	messaging.KindNewFare:   TopicNewFare,
}

// Event names emitted on the bus, keyed by wire topic.
var topicEvents = map[Topic]string{
	TopicJob:       "job",
	TopicQuote:     "quote",
	TopicCreated:   "created",
	TopicAccepted:  "accepted",
	TopicLocation:  "location",
	TopicCompleted: "completed",
	TopicNewFare:   "new-fare",
}
