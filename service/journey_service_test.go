package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"taxicoin/chain"
	"taxicoin/messaging"
	"taxicoin/pkg/events"
	"taxicoin/pkg/logger"
	"taxicoin/pkg/models"
)

var (
	testRiderAddr  = common.HexToAddress("0x0000000000000000000000000000000000000e01")
	testDriverAddr = common.HexToAddress("0x0000000000000000000000000000000000000d01")
)

type journeyFixture struct {
	gw  *fakeGateway
	ch  *fakeChannel
	bus *events.Bus
	stg *fakeStorage
	svc *journeyService
}

func newJourneyFixture(t *testing.T) *journeyFixture {
	t.Helper()
	log := logger.New("journey-test")
	f := &journeyFixture{
		gw:  &fakeGateway{account: testRiderAddr},
		ch:  &fakeChannel{pubKey: "pub-rider"},
		bus: events.New(log),
		stg: &fakeStorage{},
	}
	svc := NewJourneyService(f.gw, f.ch, f.bus, f.stg, log).(*journeyService)
	svc.watchInterval = 10 * time.Millisecond
	f.svc = svc
	t.Cleanup(svc.Stop)
	return f
}

func advertisedDriver() *models.Driver {
	return &models.Driver{
		Addr:   testDriverAddr,
		Lat:    "51.5074",
		Lon:    "0.1278",
		PubKey: "pub-driver",
	}
}

func pairedJourney(fare int64, driverRating, riderRating uint8) *models.Journey {
	return &models.Journey{
		Driver: &models.Driver{
			Addr:        testDriverAddr,
			Rider:       testRiderAddr,
			RiderRating: riderRating,
		},
		Rider: &models.Rider{
			Addr:         testRiderAddr,
			Driver:       testDriverAddr,
			Fare:         big.NewInt(fare),
			DriverRating: driverRating,
		},
	}
}

// propose + quote drives the fixture into the quoted state.
func (f *journeyFixture) toQuoted(t *testing.T, fare int64) {
	t.Helper()
	err := f.svc.ProposeToDriver(context.Background(), advertisedDriver(), [2]float64{51.5074, 0.1278}, [2]float64{52.5074, 1.1278})
	require.NoError(t, err)
	f.bus.Emit("quote", &models.Quote{Address: testDriverAddr.Hex(), Fare: fare})
	require.Equal(t, StateQuoted, f.svc.State())
}

func TestProposeToDriverPublishesJobAndMovesToProposed(t *testing.T) {
	f := newJourneyFixture(t)

	pickup := [2]float64{51.5074, 0.1278}
	dropoff := [2]float64{52.5074, 1.1278}
	require.NoError(t, f.svc.ProposeToDriver(context.Background(), advertisedDriver(), pickup, dropoff))
	require.Equal(t, StateProposed, f.svc.State())

	sent := f.ch.sent()
	require.Len(t, sent, 1)
	require.Equal(t, messaging.KindJob, sent[0].Kind)
	require.Equal(t, "pub-driver", sent[0].Recipient)

	proposal := sent[0].Payload.(models.JobProposal)
	require.Equal(t, "0x0000000000000000000000000000000000000e01", proposal.Address)
	require.Equal(t, pickup, proposal.Pickup)
	require.Equal(t, dropoff, proposal.Dropoff)
}

func TestProposeToDriverRequiresIdle(t *testing.T) {
	f := newJourneyFixture(t)
	f.toQuoted(t, 120)

	err := f.svc.ProposeToDriver(context.Background(), advertisedDriver(), [2]float64{0, 0}, [2]float64{0, 0})
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	require.Equal(t, StateQuoted, te.From)
}

func TestPublishFailureReturnsToIdle(t *testing.T) {
	f := newJourneyFixture(t)
	f.ch.publishErr = errors.New("relay unreachable")

	err := f.svc.ProposeToDriver(context.Background(), advertisedDriver(), [2]float64{0, 0}, [2]float64{0, 0})
	require.Error(t, err)
	require.True(t, messaging.IsSendFault(err))
	require.Equal(t, StateIdle, f.svc.State())
}

func TestQuoteMovesToQuotedAndUnsubscribes(t *testing.T) {
	f := newJourneyFixture(t)
	f.toQuoted(t, 120)

	require.Equal(t, int64(120), f.svc.QuotedFare().Int64())
	require.Equal(t, testDriverAddr, f.svc.QuotedDriver().Addr)

	// The one-shot handler is gone: a second quote changes nothing.
	f.bus.Emit("quote", &models.Quote{Address: testDriverAddr.Hex(), Fare: 999})
	require.Equal(t, int64(120), f.svc.QuotedFare().Int64())
}

func TestRejectionQuoteCannotBeAccepted(t *testing.T) {
	f := newJourneyFixture(t)
	f.toQuoted(t, -1)

	err := f.svc.AcceptQuote(context.Background())
	require.Error(t, err)
	require.Equal(t, StateQuoted, f.svc.State())
	require.Empty(t, f.gw.createCalls)
}

func TestAcceptQuoteCreatesJourney(t *testing.T) {
	f := newJourneyFixture(t)
	f.toQuoted(t, 120)

	require.NoError(t, f.svc.AcceptQuote(context.Background()))
	require.Equal(t, StateAccepted, f.svc.State())

	require.Len(t, f.gw.createCalls, 1)
	require.Equal(t, testDriverAddr, f.gw.createCalls[0].Driver)
	require.Equal(t, int64(120), f.gw.createCalls[0].Fare.Int64())
}

func TestAcceptedNotificationMovesToHappening(t *testing.T) {
	f := newJourneyFixture(t)
	f.toQuoted(t, 120)
	require.NoError(t, f.svc.AcceptQuote(context.Background()))

	f.bus.Emit("accepted", &models.Notification{Address: testDriverAddr.Hex()})
	require.Equal(t, StateHappening, f.svc.State())
}

func TestPairingPollFallbackMovesToHappening(t *testing.T) {
	f := newJourneyFixture(t)
	f.toQuoted(t, 120)
	require.NoError(t, f.svc.AcceptQuote(context.Background()))

	// No notification arrives; the journey becomes visible on chain.
	f.gw.setJourney(pairedJourney(120, 0, 0))

	require.Eventually(t, func() bool {
		return f.svc.State() == StateHappening
	}, 2*time.Second, 5*time.Millisecond)
}

func TestAcceptQuoteFailureRestoresQuoted(t *testing.T) {
	f := newJourneyFixture(t)
	f.toQuoted(t, 120)
	f.gw.createErr = &chain.SettlementError{Op: "riderCreateJourney"}

	err := f.svc.AcceptQuote(context.Background())
	require.Error(t, err)
	require.True(t, chain.IsSettlementRejected(err))
	require.Equal(t, StateQuoted, f.svc.State())

	// The caller may retry after re-reading state.
	f.gw.createErr = nil
	require.NoError(t, f.svc.AcceptQuote(context.Background()))
}

func TestAcceptQuoteRefusesReentry(t *testing.T) {
	f := newJourneyFixture(t)
	f.toQuoted(t, 120)

	gate := make(chan struct{})
	f.gw.createGate = gate

	done := make(chan error, 1)
	go func() { done <- f.svc.AcceptQuote(context.Background()) }()

	require.Eventually(t, func() bool {
		return f.svc.State() == StateAccepting
	}, 2*time.Second, time.Millisecond)

	err := f.svc.AcceptQuote(context.Background())
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	require.Equal(t, StateAccepting, te.From)

	close(gate)
	require.NoError(t, <-done)
}

func TestGoBackFromProposedIgnoresLateQuote(t *testing.T) {
	f := newJourneyFixture(t)
	require.NoError(t, f.svc.ProposeToDriver(context.Background(), advertisedDriver(), [2]float64{0, 0}, [2]float64{0, 0}))

	require.NoError(t, f.svc.GoBack())
	require.Equal(t, StateIdle, f.svc.State())

	f.bus.Emit("quote", &models.Quote{Address: testDriverAddr.Hex(), Fare: 120})
	require.Equal(t, StateIdle, f.svc.State())
	require.Nil(t, f.svc.QuotedFare())
}

func TestEndJourneyWhenCounterpartAlreadyCompleted(t *testing.T) {
	f := newJourneyFixture(t)
	f.toQuoted(t, 120)
	require.NoError(t, f.svc.AcceptQuote(context.Background()))
	f.bus.Emit("accepted", &models.Notification{})

	f.gw.setJourney(pairedJourney(120, 0, 0))
	f.gw.drivers = map[common.Address]*models.Driver{
		testDriverAddr: {Addr: testDriverAddr, RiderRating: 255, Deposit: big.NewInt(0), RatingCount: big.NewInt(0), ProposedNewFare: big.NewInt(0)},
	}

	require.NoError(t, f.svc.EndJourney(context.Background(), 200))
	require.Equal(t, StateFinished, f.svc.State())
	require.Equal(t, []uint8{200}, f.gw.completeCalls)

	records, err := f.stg.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "rider", records[0].Role)
	require.Equal(t, "120", records[0].Fare)
	require.Equal(t, uint8(200), records[0].Rating)
}

func TestEndJourneyWaitsForCounterpart(t *testing.T) {
	f := newJourneyFixture(t)
	f.toQuoted(t, 120)
	require.NoError(t, f.svc.AcceptQuote(context.Background()))
	f.bus.Emit("accepted", &models.Notification{})

	f.gw.setJourney(pairedJourney(120, 0, 0))

	require.NoError(t, f.svc.EndJourney(context.Background(), 200))
	require.Equal(t, StateEnded, f.svc.State())

	f.bus.Emit("completed", &models.Notification{Address: testDriverAddr.Hex()})
	require.Equal(t, StateFinished, f.svc.State())
}

func TestEndedSettlementPollFallback(t *testing.T) {
	f := newJourneyFixture(t)
	f.toQuoted(t, 120)
	require.NoError(t, f.svc.AcceptQuote(context.Background()))
	f.bus.Emit("accepted", &models.Notification{})

	f.gw.setJourney(pairedJourney(120, 0, 0))
	require.NoError(t, f.svc.EndJourney(context.Background(), 200))
	require.Equal(t, StateEnded, f.svc.State())

	// The driver completes; the journey disappears from the contract.
	f.gw.setJourney(nil)
	require.Eventually(t, func() bool {
		return f.svc.State() == StateFinished
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEndJourneyFailureRestoresHappening(t *testing.T) {
	f := newJourneyFixture(t)
	f.toQuoted(t, 120)
	require.NoError(t, f.svc.AcceptQuote(context.Background()))
	f.bus.Emit("accepted", &models.Notification{})

	f.gw.setJourney(pairedJourney(120, 0, 0))
	f.gw.completeErr = &chain.SettlementError{Op: "completeJourney"}

	err := f.svc.EndJourney(context.Background(), 200)
	require.Error(t, err)
	require.Equal(t, StateHappening, f.svc.State())
}

func TestEndJourneyRequiresHappening(t *testing.T) {
	f := newJourneyFixture(t)
	err := f.svc.EndJourney(context.Background(), 200)
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	require.Equal(t, StateIdle, te.From)
}

func TestLoadStateDerivesHappening(t *testing.T) {
	f := newJourneyFixture(t)
	f.gw.setJourney(pairedJourney(120, 0, 0))

	require.NoError(t, f.svc.LoadState(context.Background()))
	require.Equal(t, StateHappening, f.svc.State())
	require.Equal(t, int64(120), f.svc.QuotedFare().Int64())
}

func TestLoadStateDerivesEnded(t *testing.T) {
	f := newJourneyFixture(t)
	f.gw.setJourney(pairedJourney(120, 200, 0))

	require.NoError(t, f.svc.LoadState(context.Background()))
	require.Equal(t, StateEnded, f.svc.State())
}

func TestLoadStateWithoutJourneyStaysIdle(t *testing.T) {
	f := newJourneyFixture(t)
	require.NoError(t, f.svc.LoadState(context.Background()))
	require.Equal(t, StateIdle, f.svc.State())
}

func TestConfirmFareAlterationUpdatesFare(t *testing.T) {
	f := newJourneyFixture(t)
	f.gw.setJourney(pairedJourney(120, 0, 0))
	require.NoError(t, f.svc.LoadState(context.Background()))

	require.NoError(t, f.svc.ConfirmFareAlteration(context.Background(), big.NewInt(150)))
	require.Equal(t, int64(150), f.svc.QuotedFare().Int64())
	require.Len(t, f.gw.confirmCalls, 1)
}
