// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"mentor_match/internal/domain/matching"
)

const participantHelp = "`/next` - show the next candidate with Like / Pass buttons\n" +
	"`/like`, `/pass` - swipe on the candidate on screen\n" +
	"`/round` - current round and swipes left\n" +
	"`/match` - your result once matching is complete\n" +
	"`/help` - show this message"

const adminHelp = "`/new_cycle <name> <budgets> [weights]`\n - Create a cycle, e.g. `/new_cycle spring 10,8,5 1,3,5`.\n\n" +
	"`/enroll <cycleID> <sponsor|applicant> <telegramID or -> <slots> <name>`\n - Add a participant.\n\n" +
	"`/schedule <cycleID> <start> <end>`\n - Schedule a round window (RFC 3339 times). When it ends the round advances, or matching runs after the last round.\n\n" +
	"`/cycle <cycleID>`\n - Show a cycle.\n\n" +
	"`/tick`\n - Process due round boundaries now."

func RegisterBotCommands(
	ctx context.Context,
	b *telebot.Bot,
	adminTelegramID int64,
	participants matching.ParticipantRepository,
	baseLogger *logrus.Entry, // For contextual logging
) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/start").WithField("sender_id", senderID)
		logCtx.Info("Processing /start command")

		if senderID == adminTelegramID {
			logCtx.Info("User identified as Admin")
			return c.Send(fmt.Sprintf("Hello, %s! You are the organizer. Use /help for the list of commands.", c.Sender().FirstName))
		}

		p, err := participants.GetByTelegramID(ctx, senderID)
		if err == nil {
			logCtx.WithField("participant_id", p.ID).Info("User identified as participant")
			return c.Send(fmt.Sprintf("Hello, %s! You are enrolled as %s. Use /next to start swiping.", p.DisplayName, strings.ToLower(string(p.Role))))
		} else if !errors.Is(err, matching.ErrParticipantNotFound) {
			logCtx.WithError(err).Error("Error checking participant status for /start command")
			return c.Send("Something went wrong while checking your enrollment. Please try again later.")
		}

		logCtx.Info("User is unknown")
		return c.Send("Hello! This bot runs mentor matching rounds. If you are taking part, ask the organizer to enroll you.")
	})

	b.Handle("/help", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/help").WithField("sender_id", senderID)
		logCtx.Info("Processing /help command")

		if senderID == adminTelegramID {
			return c.Send("Organizer commands:\n\n"+adminHelp, &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
		}

		_, err := participants.GetByTelegramID(ctx, senderID)
		if err == nil {
			return c.Send("Each round you get a limited number of swipes. Later rounds count more, so keep your picks current.\n\n"+participantHelp,
				&telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
		} else if !errors.Is(err, matching.ErrParticipantNotFound) {
			logCtx.WithError(err).Error("Error checking participant status for /help command")
			return c.Send("Something went wrong while checking your enrollment. Please try again later.")
		}

		return c.Send("No commands are available to you yet. Ask the organizer to enroll you.")
	})
}
