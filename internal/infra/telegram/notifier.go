package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"mentor_match/internal/app"
	"mentor_match/internal/domain/matching"
	domainTelegram "mentor_match/internal/domain/telegram"
)

// MatchNotifier tells every participant with a Telegram ID what finalization gave them.
type MatchNotifier struct {
	client domainTelegram.Client
	logger *logrus.Entry
}

func NewMatchNotifier(client domainTelegram.Client, logger *logrus.Entry) *MatchNotifier {
	return &MatchNotifier{client: client, logger: logger}
}

// NotifyFinalized sends one message per reachable participant. It keeps going after a failed
// send and returns the joined errors.
func (n *MatchNotifier) NotifyFinalized(ctx context.Context, f *app.Finalization) error {
	names := make(map[string]string, len(f.Sponsors)+len(f.Applicants))
	for _, p := range f.Sponsors {
		names[p.ID] = p.DisplayName
	}
	for _, p := range f.Applicants {
		names[p.ID] = p.DisplayName
	}

	var errs []error
	sent := 0
	for _, group := range [][]*matching.Participant{f.Sponsors, f.Applicants} {
		for _, p := range group {
			if !p.TelegramID.Valid {
				continue
			}
			if err := ctx.Err(); err != nil {
				return errors.Join(append(errs, err)...)
			}
			if err := n.client.SendMessage(p.TelegramID.Int64, resultMessage(f.Cycle, p, names), nil); err != nil {
				n.logger.WithError(err).WithFields(logrus.Fields{
					"participant_id": p.ID,
					"telegram_id":    p.TelegramID.Int64,
				}).Warn("Failed to send match result")
				errs = append(errs, fmt.Errorf("participant %s: %w", p.ID, err))
				continue
			}
			sent++
		}
	}

	n.logger.WithFields(logrus.Fields{"cycle_id": f.Cycle.ID, "sent": sent, "failed": len(errs)}).Info("Match results sent")
	return errors.Join(errs...)
}

func resultMessage(c *matching.Cycle, p *matching.Participant, names map[string]string) string {
	if len(p.Matches) == 0 {
		return fmt.Sprintf("Matching for %q is complete. You were not matched this time.", c.Name)
	}
	matched := make([]string, len(p.Matches))
	for i, id := range p.Matches {
		matched[i] = displayName(names, id)
	}
	return fmt.Sprintf("Matching for %q is complete. You were matched with: %s", c.Name, strings.Join(matched, ", "))
}
