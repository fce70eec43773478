// internal/infra/telegram/participant_handlers.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"mentor_match/internal/app"
	"mentor_match/internal/domain/matching"
)

var (
	swipeMarkup = &telebot.ReplyMarkup{}
	btnLike     = swipeMarkup.Data("👍 Like", "swipe_like")
	btnPass     = swipeMarkup.Data("👎 Pass", "swipe_pass")
)

// candidateMarkup builds Like/Pass buttons that carry the candidate ID, so a stale card
// cannot be swiped after the participant moved on.
func candidateMarkup(candidateID string) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	like, pass := btnLike, btnPass
	like.Data, pass.Data = candidateID, candidateID
	markup.Inline(markup.Row(like, pass))
	return markup
}

// swipeErrorReply maps swipe input errors to user-facing text. ok is false for internal errors.
func swipeErrorReply(err error) (reply string, ok bool) {
	switch {
	case errors.Is(err, matching.ErrBudgetExceeded):
		return "You have used all your swipes for this round. New swipes open when the round ends.", true
	case errors.Is(err, matching.ErrNoCandidates):
		return "You have seen everyone for this round.", true
	case errors.Is(err, matching.ErrNothingShown):
		return "No candidate is on screen. Use /next first.", true
	case errors.Is(err, matching.ErrDuplicateSwipe):
		return "You already swiped on this candidate this round.", true
	case errors.Is(err, matching.ErrCycleClosed):
		return "Matching for your cycle has finished. Use /match to see your result.", true
	case errors.Is(err, matching.ErrUnknownCounterpart):
		return "That candidate is no longer available.", true
	}
	return "", false
}

func formatCandidate(p *matching.Participant, left int) string {
	return fmt.Sprintf("%s (%s)\nSwipes left this round: %d", p.DisplayName, strings.ToLower(string(p.Role)), left)
}

func formatMatchStatus(status *app.MatchStatus, names map[string]string) string {
	if !status.Finalized {
		return "Matching is still in progress. Results appear after the final round."
	}
	if len(status.Matches) == 0 {
		return "Matching is complete. You were not matched this time."
	}
	matched := make([]string, len(status.Matches))
	for i, id := range status.Matches {
		matched[i] = displayName(names, id)
	}
	msg := "Matching is complete. You were matched with: " + strings.Join(matched, ", ")
	if status.Role == matching.RoleSponsor && len(status.Matches) < status.Capacity {
		msg += fmt.Sprintf("\n%d of your %d slots are still open.", status.Capacity-len(status.Matches), status.Capacity)
	}
	return msg
}

func formatRound(status *app.CycleStatus, left int) string {
	if status.Finalized {
		return fmt.Sprintf("Cycle %q is finalized.", status.Name)
	}
	window := "closed"
	if status.IsMatching {
		window = "open"
	}
	return fmt.Sprintf("Cycle %q: round %d of %d, window %s.\nSwipes left this round: %d",
		status.Name, status.CurrentRound+1, status.Rounds, window, left)
}

func displayName(names map[string]string, id string) string {
	if n, ok := names[id]; ok && n != "" {
		return n
	}
	return id
}

// RegisterParticipantHandlers registers the swipe and status commands for enrolled participants.
func RegisterParticipantHandlers(
	ctx context.Context,
	b *telebot.Bot,
	participants matching.ParticipantRepository,
	swipes *app.SwipeService,
	queries *app.QueryService,
	baseLogger *logrus.Entry,
) {
	h := &participantHandlers{ctx: ctx, participants: participants, swipes: swipes, queries: queries, logger: baseLogger}

	b.Handle("/next", h.next)
	b.Handle("/like", func(c telebot.Context) error { return h.swipe(c, matching.DirectionDesire, "") })
	b.Handle("/pass", func(c telebot.Context) error { return h.swipe(c, matching.DirectionReject, "") })
	b.Handle(&btnLike, func(c telebot.Context) error { return h.swipe(c, matching.DirectionDesire, c.Callback().Data) })
	b.Handle(&btnPass, func(c telebot.Context) error { return h.swipe(c, matching.DirectionReject, c.Callback().Data) })
	b.Handle("/match", h.match)
	b.Handle("/round", h.round)
}

type participantHandlers struct {
	ctx          context.Context
	participants matching.ParticipantRepository
	swipes       *app.SwipeService
	queries      *app.QueryService
	logger       *logrus.Entry
}

// lookup resolves the sender to its latest enrollment, replying itself when that fails.
func (h *participantHandlers) lookup(c telebot.Context, logCtx *logrus.Entry) (*matching.Participant, error) {
	p, err := h.participants.GetByTelegramID(h.ctx, c.Sender().ID)
	if err == nil {
		return p, nil
	}
	if errors.Is(err, matching.ErrParticipantNotFound) {
		logCtx.Info("Sender is not enrolled")
		return nil, c.Send("You are not enrolled in a matching cycle. Ask the organizer to add you.")
	}
	logCtx.WithError(err).Error("Failed to look up participant")
	return nil, c.Send("Something went wrong while checking your enrollment. Please try again later.")
}

func (h *participantHandlers) next(c telebot.Context) error {
	logCtx := h.logger.WithFields(logrus.Fields{"handler": "/next", "sender_id": c.Sender().ID})
	p, err := h.lookup(c, logCtx)
	if p == nil {
		return err
	}
	logCtx = logCtx.WithField("participant_id", p.ID)

	candidate, err := h.swipes.ShowNext(h.ctx, p.ID)
	if err != nil {
		if reply, ok := swipeErrorReply(err); ok {
			return c.Send(reply)
		}
		logCtx.WithError(err).Error("Failed to pick next candidate")
		return c.Send("Could not load the next candidate. Please try again later.")
	}

	left, err := h.swipes.Remaining(h.ctx, p.ID)
	if err != nil {
		logCtx.WithError(err).Warn("Failed to count remaining swipes")
	}
	return c.Send(formatCandidate(candidate, left), &telebot.SendOptions{ReplyMarkup: candidateMarkup(candidate.ID)})
}

// swipe records a swipe on the shown candidate. expectedID comes from a button and must
// still be the candidate on screen.
func (h *participantHandlers) swipe(c telebot.Context, dir matching.Direction, expectedID string) error {
	logCtx := h.logger.WithFields(logrus.Fields{"handler": "swipe", "sender_id": c.Sender().ID, "direction": dir})
	fromButton := c.Callback() != nil
	reply := func(text string) error {
		if fromButton {
			return c.Respond(&telebot.CallbackResponse{Text: text})
		}
		return c.Send(text)
	}

	p, err := h.lookup(c, logCtx)
	if p == nil {
		return err
	}
	logCtx = logCtx.WithField("participant_id", p.ID)

	if expectedID != "" && (!p.LastShownID.Valid || p.LastShownID.String != expectedID) {
		logCtx.WithField("counterpart_id", expectedID).Info("Stale candidate card")
		return reply("This card is out of date. Use /next.")
	}

	if _, err := h.swipes.SwipeShown(h.ctx, p.ID, dir); err != nil {
		if text, ok := swipeErrorReply(err); ok {
			return reply(text)
		}
		logCtx.WithError(err).Error("Failed to record swipe")
		return reply("Could not record your swipe. Please try again later.")
	}

	text := "Passed."
	if dir == matching.DirectionDesire {
		text = "Liked!"
	}
	if fromButton {
		if err := c.Respond(&telebot.CallbackResponse{Text: text}); err != nil {
			logCtx.WithError(err).Warn("Failed to answer callback")
		}
		return h.next(c)
	}
	return c.Send(text + " Use /next for the next candidate.")
}

func (h *participantHandlers) match(c telebot.Context) error {
	logCtx := h.logger.WithFields(logrus.Fields{"handler": "/match", "sender_id": c.Sender().ID})
	p, err := h.lookup(c, logCtx)
	if p == nil {
		return err
	}

	status, err := h.queries.MatchStatus(h.ctx, p.ID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to load match status")
		return c.Send("Could not load your match status. Please try again later.")
	}

	names := make(map[string]string, len(status.Matches))
	for _, id := range status.Matches {
		if other, err := h.participants.GetByID(h.ctx, id); err == nil {
			names[id] = other.DisplayName
		}
	}
	return c.Send(formatMatchStatus(status, names))
}

func (h *participantHandlers) round(c telebot.Context) error {
	logCtx := h.logger.WithFields(logrus.Fields{"handler": "/round", "sender_id": c.Sender().ID})
	p, err := h.lookup(c, logCtx)
	if p == nil {
		return err
	}

	status, err := h.queries.CycleStatus(h.ctx, p.CycleID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to load cycle status")
		return c.Send("Could not load the cycle status. Please try again later.")
	}
	left, err := h.swipes.Remaining(h.ctx, p.ID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to count remaining swipes")
		return c.Send("Could not load the cycle status. Please try again later.")
	}
	return c.Send(formatRound(status, left))
}
