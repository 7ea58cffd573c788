package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"taxicoin/chain"
	"taxicoin/messaging"
	"taxicoin/pkg/events"
	"taxicoin/pkg/logger"
	"taxicoin/pkg/models"
	"taxicoin/storage"
)

// JourneyState is the rider's position in the negotiation lifecycle. Only
// completed gateway calls and dispatched events move it, never speculation.
type JourneyState string

const (
	StateIdle      JourneyState = "idle"
	StateProposing JourneyState = "proposing"
	StateProposed  JourneyState = "proposed"
	StateQuoted    JourneyState = "quoted"
	StateAccepting JourneyState = "accepting"
	StateAccepted  JourneyState = "accepted"
	StateHappening JourneyState = "happening"
	StateEnding    JourneyState = "ending"
	StateEnded     JourneyState = "ended"
	StateFinished  JourneyState = "finished"
)

var errNoJourney = errors.New("not currently on a journey")

// TransitionError is an operation attempted from a state that does not
// permit it. The machine stays where it was.
type TransitionError struct {
	Action string
	From   JourneyState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("journey: cannot %s from state %q", e.Action, e.From)
}

// JourneyService is the rider-side journey state machine. It sequences
// channel negotiation and gateway settlement into the propose → quote →
// accept → happening → complete lifecycle.
type JourneyService interface {
	State() JourneyState
	// QuotedDriver and QuotedFare describe the negotiation in progress.
	QuotedDriver() *models.Driver
	QuotedFare() *big.Int

	// LoadState derives the current state from the contract, for a client
	// starting up mid-journey.
	LoadState(ctx context.Context) error
	LoadDrivers(ctx context.Context) ([]*models.Driver, error)

	// ProposeToDriver sends a job proposal and starts waiting for a quote.
	ProposeToDriver(ctx context.Context, driver *models.Driver, pickup, dropoff [2]float64) error
	// AcceptQuote escrows deposit plus the quoted fare on chain, then waits
	// for the pairing to become visible.
	AcceptQuote(ctx context.Context) error
	RejectQuote() error
	// GoBack abandons a proposal before anything is on chain.
	GoBack() error

	// EndJourney rates the driver and completes. If the driver has already
	// completed the journey settles now; otherwise the machine waits in
	// ended for the driver's completion.
	EndJourney(ctx context.Context, rating uint8) error

	// ConfirmFareAlteration escrows the fare delta for a driver-proposed
	// new fare.
	ConfirmFareAlteration(ctx context.Context, newFare *big.Int) error

	// Stop cancels any background waits.
	Stop()
}

type journeyService struct {
	gw  chain.IContractGateway
	ch  messaging.IChannel
	bus *events.Bus
	stg storage.IStorage
	log logger.ILogger

	// watchInterval paces the pairing/settlement polls that back up the
	// accepted/completed notification messages.
	watchInterval time.Duration

	mu          sync.Mutex
	state       JourneyState
	driver      *models.Driver
	fare        *big.Int
	quoteToken  int
	quoteSubbed bool
	eventToken  int
	eventSubbed bool
	eventName   string
	watchCancel context.CancelFunc
}

func NewJourneyService(gw chain.IContractGateway, ch messaging.IChannel, bus *events.Bus, stg storage.IStorage, log logger.ILogger) JourneyService {
	return &journeyService{
		gw:            gw,
		ch:            ch,
		bus:           bus,
		stg:           stg,
		log:           log,
		watchInterval: 2 * time.Second,
		state:         StateIdle,
	}
}

func (s *journeyService) State() JourneyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *journeyService) QuotedDriver() *models.Driver {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.driver
}

func (s *journeyService) QuotedFare() *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fare
}

func (s *journeyService) LoadDrivers(ctx context.Context) ([]*models.Driver, error) {
	return s.gw.ListDrivers(ctx)
}

// LoadState reproduces the startup derivation: a visible journey means
// happening, unless the driver-given rating shows this side already
// completed, which means ended.
func (s *journeyService) LoadState(ctx context.Context) error {
	journey, err := s.gw.CurrentJourney(ctx)
	if err != nil {
		return err
	}
	if journey == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.driver = journey.Driver
	s.fare = journey.Rider.Fare
	if journey.Rider.DriverRating != 0 {
		s.toEndedLocked()
	} else {
		s.state = StateHappening
	}
	return nil
}

func (s *journeyService) ProposeToDriver(ctx context.Context, driver *models.Driver, pickup, dropoff [2]float64) error {
	account, err := s.gw.Account(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != StateIdle {
		defer s.mu.Unlock()
		return &TransitionError{Action: "propose", From: s.state}
	}
	s.state = StateProposing
	s.quoteToken = s.bus.On("quote", s.handleQuote)
	s.quoteSubbed = true
	s.mu.Unlock()

	proposal := models.JobProposal{
		Address: strings.ToLower(account.Hex()),
		Pickup:  pickup,
		Dropoff: dropoff,
	}
	if err := s.ch.Publish(ctx, messaging.KindJob, driver.PubKey, proposal); err != nil {
		s.mu.Lock()
		s.offQuoteLocked()
		s.state = StateIdle
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if s.state == StateProposing {
		s.driver = driver
		s.state = StateProposed
	}
	s.mu.Unlock()
	return nil
}

func (s *journeyService) handleQuote(args ...interface{}) {
	if len(args) == 0 {
		return
	}
	quote, ok := args[0].(*models.Quote)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateProposing && s.state != StateProposed {
		return
	}
	s.offQuoteLocked()
	s.fare = big.NewInt(quote.Fare)
	s.state = StateQuoted
	s.log.Info("quote received", logger.String("fare", s.fare.String()))
}

func (s *journeyService) AcceptQuote(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateQuoted {
		defer s.mu.Unlock()
		return &TransitionError{Action: "accept quote", From: s.state}
	}
	if s.fare == nil || s.fare.Sign() < 0 {
		defer s.mu.Unlock()
		return fmt.Errorf("journey: quote was a rejection, nothing to accept")
	}
	driver, fare := s.driver, s.fare
	s.state = StateAccepting
	s.mu.Unlock()

	if _, err := s.gw.CreateJourney(ctx, driver.Addr, fare); err != nil {
		s.mu.Lock()
		s.state = StateQuoted
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.state = StateAccepted
	// The driver's acceptance reaches us either as an accepted notification
	// or, if that message is lost, through the contract read.
	s.subscribeLocked("accepted", func(...interface{}) { s.onPaired() })
	s.watchLocked(func(ctx context.Context) bool {
		journey, err := s.gw.CurrentJourney(ctx)
		if err != nil {
			return false
		}
		if journey != nil && journey.Driver.Rider != chain.ZeroAddress {
			s.onPaired()
			return true
		}
		return false
	})
	s.mu.Unlock()
	return nil
}

func (s *journeyService) onPaired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAccepted {
		return
	}
	s.unsubscribeLocked()
	s.stopWatchLocked()
	s.state = StateHappening
	s.log.Info("journey happening")
}

func (s *journeyService) RejectQuote() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateQuoted {
		return &TransitionError{Action: "reject quote", From: s.state}
	}
	s.resetLocked()
	return nil
}

func (s *journeyService) GoBack() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateProposing, StateProposed:
		s.offQuoteLocked()
		s.resetLocked()
	default:
		// Pre-proposal there is nothing negotiated to unwind; destination
		// selection lives with the caller.
	}
	return nil
}

func (s *journeyService) EndJourney(ctx context.Context, rating uint8) error {
	s.mu.Lock()
	if s.state != StateHappening {
		defer s.mu.Unlock()
		return &TransitionError{Action: "end journey", From: s.state}
	}
	s.state = StateEnding
	s.mu.Unlock()

	journey, err := s.gw.CurrentJourney(ctx)
	if err == nil && journey == nil {
		err = errNoJourney
	}
	if err != nil {
		s.mu.Lock()
		s.state = StateHappening
		s.mu.Unlock()
		return err
	}

	if _, err := s.gw.CompleteJourney(ctx, rating); err != nil {
		s.mu.Lock()
		s.state = StateHappening
		s.mu.Unlock()
		return err
	}

	s.recordHistory(ctx, journey, rating)

	driver, err := s.gw.Driver(ctx, journey.Driver.Addr)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil && driver.RiderRating != 0 {
		// Counterpart had already completed; settlement is done.
		s.state = StateFinished
		return nil
	}
	s.toEndedLocked()
	return nil
}

// toEndedLocked parks the machine in ended and waits for the driver's
// completion, by notification or by the journey disappearing from the
// contract.
func (s *journeyService) toEndedLocked() {
	s.state = StateEnded
	s.subscribeLocked("completed", func(...interface{}) { s.onSettled() })
	s.watchLocked(func(ctx context.Context) bool {
		journey, err := s.gw.CurrentJourney(ctx)
		if err != nil {
			return false
		}
		if journey == nil {
			s.onSettled()
			return true
		}
		return false
	})
}

func (s *journeyService) onSettled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateEnded {
		return
	}
	s.unsubscribeLocked()
	s.stopWatchLocked()
	s.state = StateFinished
	s.log.Info("journey settled")
}

func (s *journeyService) ConfirmFareAlteration(ctx context.Context, newFare *big.Int) error {
	s.mu.Lock()
	if s.state != StateHappening {
		defer s.mu.Unlock()
		return &TransitionError{Action: "confirm fare alteration", From: s.state}
	}
	s.mu.Unlock()

	if _, err := s.gw.ConfirmFareAlteration(ctx, newFare); err != nil {
		return err
	}

	s.mu.Lock()
	s.fare = new(big.Int).Set(newFare)
	s.mu.Unlock()
	return nil
}

func (s *journeyService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offQuoteLocked()
	s.unsubscribeLocked()
	s.stopWatchLocked()
}

// ---------------- //
// Internal helpers //
// ---------------- //

func (s *journeyService) resetLocked() {
	s.unsubscribeLocked()
	s.stopWatchLocked()
	s.driver = nil
	s.fare = nil
	s.state = StateIdle
}

func (s *journeyService) offQuoteLocked() {
	if s.quoteSubbed {
		s.bus.Off("quote", s.quoteToken)
		s.quoteSubbed = false
	}
}

func (s *journeyService) subscribeLocked(name string, handler events.Handler) {
	s.unsubscribeLocked()
	s.eventName = name
	s.eventToken = s.bus.On(name, handler)
	s.eventSubbed = true
}

func (s *journeyService) unsubscribeLocked() {
	if s.eventSubbed {
		s.bus.Off(s.eventName, s.eventToken)
		s.eventSubbed = false
	}
}

// watchLocked starts a background poll that runs check until it reports done
// or the watch is cancelled. At most one watch is live at a time.
func (s *journeyService) watchLocked(check func(ctx context.Context) bool) {
	s.stopWatchLocked()
	ctx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel

	interval := s.watchInterval
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if check(ctx) {
					return
				}
			}
		}
	}()
}

func (s *journeyService) stopWatchLocked() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
}

func (s *journeyService) recordHistory(ctx context.Context, journey *models.Journey, rating uint8) {
	if s.stg == nil {
		return
	}
	rec := &models.JourneyRecord{
		Role:        "rider",
		Counterpart: strings.ToLower(journey.Driver.Addr.Hex()),
		Fare:        journey.Rider.Fare.String(),
		Rating:      rating,
		CompletedAt: time.Now().UTC(),
	}
	if err := s.stg.Journey().Record(ctx, rec); err != nil {
		s.log.Warning("failed to record journey history", logger.Error(err))
	}
}
