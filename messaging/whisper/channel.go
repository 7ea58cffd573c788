// Package whisper implements the negotiation channel over a node's shh_*
// JSON-RPC namespace: encrypted store-and-forward broadcast with public-key
// addressing and 4-byte topic filtering.
package whisper

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"taxicoin/config"
	"taxicoin/messaging"
	"taxicoin/pkg/events"
	"taxicoin/pkg/logger"
	"taxicoin/pkg/models"
	"taxicoin/storage"
)

var errUnknownKind = errors.New("whisper: unknown message kind")

type Channel struct {
	rpc *rpc.Client
	bus *events.Bus
	ids storage.IIdentityStorage // nil disables key persistence
	log logger.ILogger

	privateKey   string // configured key to import, may be empty
	ttl          uint32
	powTime      uint32
	powTarget    float64
	pollInterval time.Duration

	mu         sync.Mutex
	identityID string
	pubKey     string
	filterID   string
	stopPoll   chan struct{}
}

func New(cfg config.Config, bus *events.Bus, ids storage.IIdentityStorage, log logger.ILogger) (messaging.IChannel, error) {
	client, err := rpc.Dial(cfg.ShhURL)
	if err != nil {
		log.Error("failed to dial messaging relay", logger.Error(err))
		return nil, err
	}

	return &Channel{
		rpc:          client,
		bus:          bus,
		ids:          ids,
		log:          log,
		privateKey:   cfg.ShhPrivateKey,
		ttl:          cfg.ShhTTL,
		powTime:      cfg.ShhPowTime,
		powTarget:    cfg.ShhPowTarget,
		pollInterval: cfg.ShhPollInterval,
	}, nil
}

// EnsureReady sets up the identity once; later calls are no-ops. A configured
// private key wins over a stored one; a freshly generated key is written back
// to the store so the public key survives restarts.
func (c *Channel) EnsureReady(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identityID != "" {
		return nil
	}

	key := c.privateKey
	if key == "" && c.ids != nil {
		stored, err := c.ids.LoadKey(ctx)
		if err != nil {
			c.log.Warning("failed to load stored identity key", logger.Error(err))
		} else {
			key = stored
		}
	}

	var id string
	if key != "" {
		if err := c.rpc.CallContext(ctx, &id, "shh_addPrivateKey", key); err != nil {
			c.log.Error("failed to import identity key", logger.Error(err))
			return err
		}
	} else {
		if err := c.rpc.CallContext(ctx, &id, "shh_newKeyPair"); err != nil {
			c.log.Error("failed to generate identity key pair", logger.Error(err))
			return err
		}
	}

	var pubKey string
	if err := c.rpc.CallContext(ctx, &pubKey, "shh_getPublicKey", id); err != nil {
		c.log.Error("failed to derive identity public key", logger.Error(err))
		return err
	}

	c.identityID = id
	c.pubKey = pubKey

	if key == "" && c.ids != nil {
		var generated string
		if err := c.rpc.CallContext(ctx, &generated, "shh_getPrivateKey", id); err != nil {
			c.log.Warning("failed to export identity key for persistence", logger.Error(err))
		} else if err := c.ids.SaveKey(ctx, generated); err != nil {
			c.log.Warning("failed to persist identity key", logger.Error(err))
		}
	}

	if err := c.resetFilterLocked(ctx); err != nil {
		c.identityID = ""
		c.pubKey = ""
		return err
	}

	c.log.Info("messaging identity ready")
	return nil
}

func (c *Channel) PublicKey(ctx context.Context) (string, error) {
	if err := c.EnsureReady(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pubKey, nil
}

type postArgs struct {
	PubKey    string  `json:"pubKey"`
	Sig       string  `json:"sig"`
	TTL       uint32  `json:"ttl"`
	Topic     string  `json:"topic"`
	Payload   string  `json:"payload"`
	PowTime   uint32  `json:"powTime"`
	PowTarget float64 `json:"powTarget"`
}

// Publish submits one encrypted message for relay. At-most-once: there is no
// delivery acknowledgment beyond the relay accepting the envelope.
func (c *Channel) Publish(ctx context.Context, kind messaging.Kind, recipientPubKey string, payload interface{}) error {
	if err := c.EnsureReady(ctx); err != nil {
		return err
	}

	topic, ok := kindTopics[kind]
	if !ok {
		return &messaging.SendError{Kind: kind, Err: errUnknownKind}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &messaging.SendError{Kind: kind, Err: err}
	}

	c.mu.Lock()
	sig := c.identityID
	c.mu.Unlock()

	args := postArgs{
		PubKey:    recipientPubKey,
		Sig:       sig,
		TTL:       c.ttl,
		Topic:     topic.hex(),
		Payload:   hexutil.Encode(body),
		PowTime:   c.powTime,
		PowTarget: c.powTarget,
	}

	var posted bool
	if err := c.rpc.CallContext(ctx, &posted, "shh_post", args); err != nil {
		c.log.Error("failed to publish message", logger.String("kind", string(kind)), logger.Error(err))
		return &messaging.SendError{Kind: kind, Err: err}
	}
	return nil
}

// Stop cancels the poll loop. The identity and filter stay registered on the
// node; a later EnsureReady reuses them only via the stored key.
func (c *Channel) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopPollLocked()
}

func (c *Channel) stopPollLocked() {
	if c.stopPoll != nil {
		close(c.stopPoll)
		c.stopPoll = nil
	}
}

// resetFilterLocked installs a fresh identity-scoped filter and (re)starts
// the poll loop. Only one filter and one loop may be live per identity.
func (c *Channel) resetFilterLocked(ctx context.Context) error {
	var filterID string
	criteria := map[string]interface{}{"privateKeyID": c.identityID}
	if err := c.rpc.CallContext(ctx, &filterID, "shh_newMessageFilter", criteria); err != nil {
		c.log.Error("failed to install message filter", logger.Error(err))
		return err
	}
	c.filterID = filterID

	c.stopPollLocked()
	stop := make(chan struct{})
	c.stopPoll = stop
	go c.pollLoop(stop)

	return nil
}

func (c *Channel) pollLoop(stop chan struct{}) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.poll()
		}
	}
}

type shhMessage struct {
	Sig     string        `json:"sig"`
	TTL     uint32        `json:"ttl"`
	Topic   hexutil.Bytes `json:"topic"`
	Payload hexutil.Bytes `json:"payload"`
	Hash    string        `json:"hash"`
}

// poll drains unread filtered messages and emits one bus event per decoded
// message. A failed fetch usually means the filter expired on the node; the
// filter is regenerated and polling continues, nothing is surfaced.
func (c *Channel) poll() {
	c.mu.Lock()
	filterID := c.filterID
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.pollInterval)
	defer cancel()

	var msgs []shhMessage
	if err := c.rpc.CallContext(ctx, &msgs, "shh_getFilterMessages", filterID); err != nil {
		c.log.Warning("message poll failed, regenerating filter", logger.Error(err))
		c.mu.Lock()
		if c.identityID != "" {
			if rerr := c.resetFilterLocked(ctx); rerr != nil {
				c.log.Error("failed to regenerate message filter", logger.Error(rerr))
			}
		}
		c.mu.Unlock()
		return
	}

	for _, msg := range msgs {
		c.dispatch(msg)
	}
}

func (c *Channel) dispatch(msg shhMessage) {
	if len(msg.Topic) != 4 {
		return
	}
	var topic Topic
	copy(topic[:], msg.Topic)

	name, ok := topicEvents[topic]
	if !ok {
		return
	}

	body, err := decodePayload(topic, msg.Payload, msg.Sig)
	if err != nil {
		c.log.Warning("dropping undecodable message",
			logger.String("event", name),
			logger.Error(err),
		)
		return
	}

	c.log.Debug("message received", logger.String("event", name))
	c.bus.Emit(name, body)
}

// decodePayload carries the envelope's signing key into the body: the JSON
// names an Ethereum account, but replies must be encrypted to the sender's
// messaging key.
func decodePayload(topic Topic, payload []byte, senderKey string) (interface{}, error) {
	switch topic {
	case TopicJob:
		var body models.JobProposal
		err := json.Unmarshal(payload, &body)
		body.SenderKey = senderKey
		return &body, err
	case TopicQuote:
		var body models.Quote
		err := json.Unmarshal(payload, &body)
		body.SenderKey = senderKey
		return &body, err
	case TopicNewFare:
		var body models.FareProposal
		err := json.Unmarshal(payload, &body)
		body.SenderKey = senderKey
		return &body, err
	default:
		// Notification topics carry just the sender address.
		var body models.Notification
		err := json.Unmarshal(payload, &body)
		body.SenderKey = senderKey
		return &body, err
	}
}
