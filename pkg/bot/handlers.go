package bot

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	tele "gopkg.in/telebot.v3"

	"taxicoin/pkg/logger"
)

func (b *Bot) handleAdvertiseStart(c tele.Context) error {
	session := b.session(c)
	session.State = StateLocation
	return c.Send(messages["advertise_loc"], tele.RemoveKeyboard)
}

func (b *Bot) handleRevoke(c tele.Context) error {
	if _, err := b.Svc.Driver().RevokeAdvert(context.Background()); err != nil {
		b.Log.Error("failed to revoke advert", logger.Error(err))
		return c.Send("⚠️ Revoke failed: " + err.Error())
	}
	return c.Send(messages["revoked"])
}

func (b *Bot) handleAcceptStart(c tele.Context) error {
	session := b.session(c)
	session.State = StateRider
	return c.Send(messages["ask_rider"], tele.RemoveKeyboard)
}

func (b *Bot) handleCompleteStart(c tele.Context) error {
	session := b.session(c)
	session.State = StateRating
	return c.Send(messages["ask_rating"], tele.RemoveKeyboard)
}

func (b *Bot) handleNewFareStart(c tele.Context) error {
	session := b.session(c)
	session.State = StateNewFare
	return c.Send("💰 Enter the new fare as a whole number:", tele.RemoveKeyboard)
}

func (b *Bot) handleHistory(c tele.Context) error {
	records, err := b.Stg.Journey().List(context.Background())
	if err != nil {
		b.Log.Error("failed to load journey history", logger.Error(err))
		return c.Send("⚠️ Could not load history.")
	}
	if len(records) == 0 {
		return c.Send(messages["no_history"])
	}
	for _, r := range records {
		txt := fmt.Sprintf("🏁 JOURNEY #%d\n👤 Rider: %s\n💰 Fare: %s\n⭐️ Your rating: %d\n🕒 %s",
			r.ID, r.Counterpart, r.Fare, r.Rating, r.CompletedAt.Format("2006-01-02 15:04"))
		c.Send(txt)
	}
	return nil
}

func (b *Bot) handlePublicKey(c tele.Context) error {
	key, err := b.Svc.Driver().PublicKey(context.Background())
	if err != nil {
		b.Log.Error("failed to load public key", logger.Error(err))
		return c.Send("⚠️ Could not load the public key.")
	}
	return c.Send("🔑 " + key)
}

func (b *Bot) handleLocation(c tele.Context) error {
	session := b.session(c)
	if session.State != StateLocation {
		return nil
	}
	loc := c.Message().Location
	return b.advertise(c, session,
		strconv.FormatFloat(float64(loc.Lat), 'f', -1, 32),
		strconv.FormatFloat(float64(loc.Lng), 'f', -1, 32))
}

func (b *Bot) advertise(c tele.Context, session *UserSession, lat, lon string) error {
	if _, err := b.Svc.Driver().Advertise(context.Background(), lat, lon); err != nil {
		b.Log.Error("failed to advertise", logger.Error(err))
		return c.Send("⚠️ Advertise failed: " + err.Error())
	}
	session.State = StateIdle
	c.Send(messages["advertised"])
	return b.showMenu(c)
}

func (b *Bot) handleCallback(c tele.Context) error {
	data := strings.TrimSpace(c.Callback().Data)
	session := b.session(c)

	if strings.HasPrefix(data, "quote_") {
		id, _ := strconv.ParseInt(strings.TrimPrefix(data, "quote_"), 10, 64)
		if b.proposal(id) == nil {
			return c.Respond(&tele.CallbackResponse{Text: "This proposal has expired.", ShowAlert: true})
		}
		session.State = StateFare
		session.ProposalID = id
		c.Respond(&tele.CallbackResponse{})
		return c.Send(messages["ask_fare"])
	}

	if strings.HasPrefix(data, "reject_") {
		id, _ := strconv.ParseInt(strings.TrimPrefix(data, "reject_"), 10, 64)
		job := b.proposal(id)
		if job == nil {
			return c.Respond(&tele.CallbackResponse{Text: "This proposal has expired.", ShowAlert: true})
		}
		if err := b.Svc.Driver().RejectProposal(context.Background(), job.SenderKey); err != nil {
			b.Log.Error("failed to reject proposal", logger.Error(err))
			return c.Respond(&tele.CallbackResponse{Text: "Reject failed: " + err.Error(), ShowAlert: true})
		}
		b.dropProposal(id)
		c.Respond(&tele.CallbackResponse{})
		return c.Send(messages["rejected"])
	}

	return c.Respond(&tele.CallbackResponse{})
}

func (b *Bot) handleText(c tele.Context) error {
	session := b.session(c)
	text := strings.TrimSpace(c.Text())

	switch session.State {
	case StateLocation:
		parts := strings.SplitN(text, ",", 2)
		if len(parts) != 2 {
			return c.Send(messages["advertise_loc"])
		}
		return b.advertise(c, session, strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))

	case StateFare:
		fare, err := strconv.ParseInt(text, 10, 64)
		if err != nil || fare < 0 {
			return c.Send(messages["ask_fare"])
		}
		job := b.proposal(session.ProposalID)
		if job == nil {
			session.State = StateIdle
			return c.Send(messages["bad_input"])
		}
		if err := b.Svc.Driver().QuoteProposal(context.Background(), job.SenderKey, fare); err != nil {
			b.Log.Error("failed to quote proposal", logger.Error(err))
			return c.Send("⚠️ Quote failed: " + err.Error())
		}
		b.rememberRider(job.SenderKey)
		b.dropProposal(session.ProposalID)
		session.State = StateIdle
		c.Send(messages["quoted"])
		return b.showMenu(c)

	case StateRider:
		if !common.IsHexAddress(text) {
			return c.Send(messages["ask_rider"])
		}
		if _, err := b.Svc.Driver().AcceptJourney(context.Background(), common.HexToAddress(text)); err != nil {
			b.Log.Error("failed to accept journey", logger.Error(err))
			return c.Send("⚠️ Accept failed: " + err.Error())
		}
		session.State = StateIdle
		c.Send(messages["accepted"])
		return b.showMenu(c)

	case StateRating:
		rating, err := strconv.ParseUint(text, 10, 8)
		if err != nil {
			return c.Send(messages["ask_rating"])
		}
		if _, err := b.Svc.Driver().CompleteJourney(context.Background(), uint8(rating)); err != nil {
			b.Log.Error("failed to complete journey", logger.Error(err))
			return c.Send("⚠️ Complete failed: " + err.Error())
		}
		session.State = StateIdle
		c.Send(messages["completed"])
		return b.showMenu(c)

	case StateNewFare:
		fare, ok := new(big.Int).SetString(text, 10)
		if !ok || fare.Sign() < 0 {
			return c.Send("💰 Enter the new fare as a whole number:")
		}
		riderKey := b.lastRider()
		if riderKey == "" {
			session.State = StateIdle
			return c.Send("⚠️ No rider to notify. Quote a proposal first.")
		}
		if err := b.Svc.Driver().ProposeFareAlteration(context.Background(), riderKey, fare); err != nil {
			b.Log.Error("failed to propose fare alteration", logger.Error(err))
			return c.Send("⚠️ Fare proposal failed: " + err.Error())
		}
		session.State = StateIdle
		c.Send("💰 New fare proposed. Waiting for the rider to confirm.")
		return b.showMenu(c)
	}

	return c.Send(messages["bad_input"])
}

func (b *Bot) dropProposal(id int64) {
	b.mu.Lock()
	delete(b.proposals, id)
	b.mu.Unlock()
}

func (b *Bot) rememberRider(pubKey string) {
	b.mu.Lock()
	b.lastRiderKey = pubKey
	b.mu.Unlock()
}

func (b *Bot) lastRider() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastRiderKey
}
