package service

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"taxicoin/chain"
	"taxicoin/messaging"
	"taxicoin/pkg/models"
	"taxicoin/storage"
)

type createCall struct {
	Driver common.Address
	Fare   *big.Int
}

type fakeGateway struct {
	mu sync.Mutex

	account common.Address
	drivers map[common.Address]*models.Driver
	journey *models.Journey
	listed  []*models.Driver

	createErr   error
	completeErr error
	createGate  chan struct{} // when non-nil, CreateJourney blocks until closed

	createCalls   []createCall
	completeCalls []uint8
	confirmCalls  []*big.Int
}

var _ chain.IContractGateway = (*fakeGateway)(nil)

func (f *fakeGateway) Advertise(ctx context.Context, lat, lon, pubKey string) (*chain.Receipt, error) {
	return &chain.Receipt{}, nil
}

func (f *fakeGateway) RevokeAdvert(ctx context.Context) (*chain.Receipt, error) {
	return &chain.Receipt{}, nil
}

func (f *fakeGateway) ListDrivers(ctx context.Context) ([]*models.Driver, error) {
	return f.listed, nil
}

func (f *fakeGateway) CreateJourney(ctx context.Context, driver common.Address, fare *big.Int) (*chain.Receipt, error) {
	f.mu.Lock()
	gate := f.createGate
	f.createCalls = append(f.createCalls, createCall{Driver: driver, Fare: fare})
	err := f.createErr
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &chain.Receipt{}, nil
}

func (f *fakeGateway) AcceptJourney(ctx context.Context, rider common.Address) (*chain.Receipt, error) {
	return &chain.Receipt{}, nil
}

func (f *fakeGateway) CompleteJourney(ctx context.Context, rating uint8) (*chain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	f.completeCalls = append(f.completeCalls, rating)
	return &chain.Receipt{}, nil
}

func (f *fakeGateway) ProposeFareAlteration(ctx context.Context, newFare *big.Int) (*chain.Receipt, error) {
	return &chain.Receipt{}, nil
}

func (f *fakeGateway) ConfirmFareAlteration(ctx context.Context, newFare *big.Int) (*chain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmCalls = append(f.confirmCalls, newFare)
	return &chain.Receipt{}, nil
}

func (f *fakeGateway) Driver(ctx context.Context, addr common.Address) (*models.Driver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.drivers[addr]; ok {
		return d, nil
	}
	return &models.Driver{Deposit: big.NewInt(0), RatingCount: big.NewInt(0), ProposedNewFare: big.NewInt(0)}, nil
}

func (f *fakeGateway) Rider(ctx context.Context, addr common.Address) (*models.Rider, error) {
	return &models.Rider{Fare: big.NewInt(0), Deposit: big.NewInt(0), RatingCount: big.NewInt(0)}, nil
}

func (f *fakeGateway) DriverDeposit(ctx context.Context) (*big.Int, error) {
	return big.NewInt(100), nil
}

func (f *fakeGateway) RiderDeposit(ctx context.Context) (*big.Int, error) {
	return big.NewInt(50), nil
}

func (f *fakeGateway) UserType(ctx context.Context, addr common.Address) (models.UserType, error) {
	return models.UserTypeNone, nil
}

func (f *fakeGateway) Account(ctx context.Context) (common.Address, error) {
	return f.account, nil
}

func (f *fakeGateway) Balance(ctx context.Context) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeGateway) CurrentJourney(ctx context.Context) (*models.Journey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.journey, nil
}

func (f *fakeGateway) Close() {}

func (f *fakeGateway) setJourney(j *models.Journey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.journey = j
}

type publishedMsg struct {
	Kind      messaging.Kind
	Recipient string
	Payload   interface{}
}

type fakeChannel struct {
	mu         sync.Mutex
	pubKey     string
	publishErr error
	published  []publishedMsg
}

var _ messaging.IChannel = (*fakeChannel)(nil)

func (f *fakeChannel) EnsureReady(ctx context.Context) error { return nil }

func (f *fakeChannel) PublicKey(ctx context.Context) (string, error) {
	return f.pubKey, nil
}

func (f *fakeChannel) Publish(ctx context.Context, kind messaging.Kind, recipient string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return &messaging.SendError{Kind: kind, Err: f.publishErr}
	}
	f.published = append(f.published, publishedMsg{Kind: kind, Recipient: recipient, Payload: payload})
	return nil
}

func (f *fakeChannel) Stop() {}

func (f *fakeChannel) sent() []publishedMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publishedMsg, len(f.published))
	copy(out, f.published)
	return out
}

type fakeStorage struct {
	mu      sync.Mutex
	key     string
	records []*models.JourneyRecord
}

var _ storage.IStorage = (*fakeStorage)(nil)

func (f *fakeStorage) Identity() storage.IIdentityStorage { return f }
func (f *fakeStorage) Journey() storage.IJourneyStorage   { return f }
func (f *fakeStorage) Close()                             {}

func (f *fakeStorage) LoadKey(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.key, nil
}

func (f *fakeStorage) SaveKey(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.key = key
	return nil
}

func (f *fakeStorage) Record(ctx context.Context, rec *models.JourneyRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeStorage) List(ctx context.Context) ([]*models.JourneyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records, nil
}
