package bot

import (
	"fmt"
	"sync"
	"time"

	tele "gopkg.in/telebot.v3"

	"taxicoin/config"
	"taxicoin/pkg/events"
	"taxicoin/pkg/logger"
	"taxicoin/pkg/models"
	"taxicoin/service"
	"taxicoin/storage"
)

// UserSession tracks where a chat is inside a multi-step flow, plus the
// proposal the pending input refers to.
type UserSession struct {
	State      string
	ProposalID int64
}

// Bot is the driver-side Telegram front end. Job proposals arriving over the
// messaging channel are forwarded into the chat with quote/reject buttons;
// the rest of the driver lifecycle is driven from the menu.
type Bot struct {
	Bot      *tele.Bot
	Log      logger.ILogger
	Cfg      config.Config
	Svc      service.IServiceManager
	Stg      storage.IStorage
	Sessions map[int64]*UserSession

	mu           sync.Mutex
	chatID       int64
	lastRiderKey string
	proposals    map[int64]*models.JobProposal
	nextID       int64
	jobToken     int
	bus          *events.Bus
}

const (
	StateIdle     = "idle"
	StateLocation = "awaiting_location"
	StateFare     = "awaiting_fare"
	StateRider    = "awaiting_rider"
	StateRating   = "awaiting_rating"
	StateNewFare  = "awaiting_new_fare"
)

func New(cfg config.Config, svc service.IServiceManager, stg storage.IStorage, bus *events.Bus, log logger.ILogger) (*Bot, error) {
	pref := tele.Settings{
		Token:  cfg.DriverBotToken,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, err
	}
	bot := &Bot{
		Bot:       b,
		Log:       log,
		Cfg:       cfg,
		Svc:       svc,
		Stg:       stg,
		Sessions:  make(map[int64]*UserSession),
		proposals: make(map[int64]*models.JobProposal),
		bus:       bus,
	}
	bot.registerHandlers()
	bot.jobToken = bus.On("job", bot.onJobProposal)
	return bot, nil
}

func (b *Bot) Start() {
	b.Log.Info("🚖 Driver bot started...")
	b.Bot.Start()
}

func (b *Bot) Stop() {
	b.bus.Off("job", b.jobToken)
	b.Bot.Stop()
}

var messages = map[string]string{
	"welcome":       "🚖 Welcome! You are now receiving job proposals in this chat.",
	"menu":          "🚖 Driver menu:",
	"advertise_loc": "📍 Send your location, or type it as lat,lon:",
	"advertised":    "✅ You are advertised. Riders can now see you.",
	"revoked":       "✅ Advert revoked. Your deposit has been returned.",
	"notif_job":     "🔔 NEW JOB PROPOSAL\n📍 Pickup: %.5f, %.5f\n🏁 Dropoff: %.5f, %.5f",
	"ask_fare":      "💰 Enter your fare quote:",
	"quoted":        "✅ Quote sent to the rider.",
	"rejected":      "🚫 Proposal rejected.",
	"ask_rider":     "👤 Enter the rider's address (0x...):",
	"accepted":      "✅ Journey accepted on chain. Drive safe!",
	"ask_rating":    "⭐️ Rate the rider (0-255):",
	"completed":     "🏁 Journey completed and settled. Thank you!",
	"no_history":    "📭 No completed journeys yet.",
	"bad_input":     "⚠️ I didn't understand that. Try the menu.",
}

func (b *Bot) registerHandlers() {
	b.Bot.Handle("/start", b.handleStart)

	b.Bot.Handle("📣 Advertise", b.handleAdvertiseStart)
	b.Bot.Handle("🚫 Revoke advert", b.handleRevoke)
	b.Bot.Handle("✅ Accept journey", b.handleAcceptStart)
	b.Bot.Handle("🏁 Complete journey", b.handleCompleteStart)
	b.Bot.Handle("💰 Propose new fare", b.handleNewFareStart)
	b.Bot.Handle("📋 Journey history", b.handleHistory)
	b.Bot.Handle("🔑 My public key", b.handlePublicKey)

	b.Bot.Handle(tele.OnLocation, b.handleLocation)
	b.Bot.Handle(tele.OnCallback, b.handleCallback)
	b.Bot.Handle(tele.OnText, b.handleText)
}

func (b *Bot) session(c tele.Context) *UserSession {
	s, ok := b.Sessions[c.Sender().ID]
	if !ok {
		s = &UserSession{State: StateIdle}
		b.Sessions[c.Sender().ID] = s
	}
	return s
}

func (b *Bot) handleStart(c tele.Context) error {
	b.Sessions[c.Sender().ID] = &UserSession{State: StateIdle}

	b.mu.Lock()
	b.chatID = c.Chat().ID
	b.mu.Unlock()

	c.Send(messages["welcome"])
	return b.showMenu(c)
}

func (b *Bot) showMenu(c tele.Context) error {
	menu := &tele.ReplyMarkup{ResizeKeyboard: true}
	menu.Reply(
		menu.Row(menu.Text("📣 Advertise"), menu.Text("🚫 Revoke advert")),
		menu.Row(menu.Text("✅ Accept journey"), menu.Text("🏁 Complete journey")),
		menu.Row(menu.Text("💰 Propose new fare")),
		menu.Row(menu.Text("📋 Journey history"), menu.Text("🔑 My public key")),
	)
	return c.Send(messages["menu"], menu)
}

// onJobProposal runs on the channel's poll goroutine, not a telebot handler.
func (b *Bot) onJobProposal(args ...interface{}) {
	if len(args) == 0 {
		return
	}
	job, ok := args[0].(*models.JobProposal)
	if !ok {
		return
	}

	id := b.addProposal(job)

	b.mu.Lock()
	chatID := b.chatID
	b.mu.Unlock()

	if chatID == 0 {
		b.Log.Debug("job proposal received before any chat registered")
		return
	}

	txt := fmt.Sprintf(messages["notif_job"], job.Pickup[0], job.Pickup[1], job.Dropoff[0], job.Dropoff[1])
	menu := &tele.ReplyMarkup{}
	menu.Inline(menu.Row(
		menu.Data("💰 Quote", fmt.Sprintf("quote_%d", id)),
		menu.Data("🚫 Reject", fmt.Sprintf("reject_%d", id)),
	))

	if _, err := b.Bot.Send(tele.ChatID(chatID), txt, menu); err != nil {
		b.Log.Error("failed to forward job proposal", logger.Error(err))
	}
}

// maxPendingProposals bounds the unanswered-proposal buffer. Riders give up
// long before a backlog this deep; anything older is dead negotiation.
const maxPendingProposals = 32

func (b *Bot) addProposal(job *models.JobProposal) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.proposals[b.nextID] = job
	for id := range b.proposals {
		if id <= b.nextID-maxPendingProposals {
			delete(b.proposals, id)
		}
	}
	return b.nextID
}

func (b *Bot) proposal(id int64) *models.JobProposal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.proposals[id]
}
