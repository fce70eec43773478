package telegram

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"mentor_match/internal/app"
	"mentor_match/internal/domain/matching"
)

const unauthorizedReply = "Error: you are not allowed to run this command."

// parseInts parses a comma-separated list such as "10,8,5".
func parseInts(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", part)
		}
		out = append(out, v)
	}
	return out, nil
}

// parseCycleArgs reads: <name> <budgets> [weights].
func parseCycleArgs(args []string) (app.CycleSettings, error) {
	if len(args) < 2 || len(args) > 3 {
		return app.CycleSettings{}, errors.New("usage: /new_cycle <name> <budgets e.g. 10,8,5> [weights e.g. 1,3,5]")
	}
	budgets, err := parseInts(args[1])
	if err != nil {
		return app.CycleSettings{}, fmt.Errorf("budgets: %w", err)
	}
	settings := app.CycleSettings{Name: args[0], SwipeBudgets: budgets}
	if len(args) == 3 {
		if settings.RoundWeights, err = parseInts(args[2]); err != nil {
			return app.CycleSettings{}, fmt.Errorf("weights: %w", err)
		}
	}
	return settings, nil
}

// parseEnrollArgs reads: <cycleID> <sponsor|applicant> <telegramID|-> <slots> <name...>.
func parseEnrollArgs(args []string) (app.Enrollment, error) {
	if len(args) < 5 {
		return app.Enrollment{}, errors.New("usage: /enroll <cycleID> <sponsor|applicant> <telegramID or -> <slots> <name>")
	}
	e := app.Enrollment{
		CycleID:     args[0],
		Role:        matching.Role(strings.ToUpper(args[1])),
		DisplayName: strings.Join(args[4:], " "),
	}
	if args[2] != "-" {
		id, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return app.Enrollment{}, errors.New("telegram ID must be a number or -")
		}
		e.TelegramID = id
	}
	slots, err := strconv.Atoi(args[3])
	if err != nil {
		return app.Enrollment{}, errors.New("slots must be a number")
	}
	e.MaxSlots = slots
	return e, nil
}

// parseScheduleArgs reads: <cycleID> <start> <end>, times in RFC 3339.
func parseScheduleArgs(args []string) (cycleID string, start, end time.Time, err error) {
	if len(args) != 3 {
		return "", time.Time{}, time.Time{}, errors.New("usage: /schedule <cycleID> <start RFC3339> <end RFC3339>")
	}
	if start, err = time.Parse(time.RFC3339, args[1]); err != nil {
		return "", time.Time{}, time.Time{}, fmt.Errorf("invalid start time: %w", err)
	}
	if end, err = time.Parse(time.RFC3339, args[2]); err != nil {
		return "", time.Time{}, time.Time{}, fmt.Errorf("invalid end time: %w", err)
	}
	return args[0], start, end, nil
}

func formatCycle(c *matching.Cycle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cycle %s (%s)\n", c.Name, c.ID)
	fmt.Fprintf(&b, "Round %d of %d, weights %v, budgets %v\n", c.CurrentRound+1, c.Rounds(), c.RoundWeights, c.SwipeBudgets)
	if c.IsFinalized() {
		fmt.Fprintf(&b, "Finalized at %s, %d unmatched", c.FinalizedAt.Time.Format(time.RFC3339), len(c.Unmatched))
	} else if c.IsMatching {
		b.WriteString("Matching window open")
	} else {
		b.WriteString("Matching window closed")
	}
	return b.String()
}

func formatTickReport(r *app.TickReport) string {
	if r.Due == 0 {
		return "No boundary events are due."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Processed %d due event(s), %d failed:\n", r.Due, r.Failed)
	for _, id := range slices.Sorted(maps.Keys(r.Outcomes)) {
		fmt.Fprintf(&b, "%s: %s\n", id, r.Outcomes[id])
	}
	return strings.TrimRight(b.String(), "\n")
}

// adminErrorReply maps admin service errors to text. ok is false for internal errors.
func adminErrorReply(err error) (string, bool) {
	switch {
	case errors.Is(err, app.ErrAdminNotAuthorized):
		return unauthorizedReply, true
	case errors.Is(err, app.ErrInvalidCycle), errors.Is(err, app.ErrInvalidEnrollment), errors.Is(err, app.ErrInvalidWindow):
		return "Error: " + err.Error(), true
	case errors.Is(err, matching.ErrCycleNotFound):
		return "Error: cycle not found.", true
	case errors.Is(err, matching.ErrCycleClosed):
		return "Error: the cycle is already finalized.", true
	case errors.Is(err, matching.ErrDuplicateTelegramID):
		return "Error: this Telegram user is already enrolled in the cycle.", true
	}
	return "", false
}

// RegisterAdminHandlers registers handlers for admin commands.
// It requires the bot instance, admin service, and the configured admin Telegram ID.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, adminService *app.AdminService, cycles *app.CycleService, adminTelegramID int64, baseLogger *logrus.Entry) {
	// guard wraps a command with logging and the admin check.
	guard := func(command string, run func(c telebot.Context, logCtx *logrus.Entry) error) {
		b.Handle(command, func(c telebot.Context) error {
			logCtx := baseLogger.WithFields(logrus.Fields{
				"handler":   command,
				"sender_id": c.Sender().ID,
			})
			logCtx.Info("Command received")

			if c.Sender().ID != adminTelegramID {
				logCtx.Warn("Unauthorized access attempt")
				return c.Send(unauthorizedReply)
			}
			return run(c, logCtx)
		})
	}

	// fail replies for a failed service call.
	fail := func(c telebot.Context, logCtx *logrus.Entry, err error, what string) error {
		if reply, ok := adminErrorReply(err); ok {
			logCtx.WithError(err).Warn(what + " rejected")
			return c.Send(reply)
		}
		logCtx.WithError(err).Error(what + " failed")
		return c.Send(fmt.Sprintf("An error occurred: %s", err.Error()))
	}

	guard("/new_cycle", func(c telebot.Context, logCtx *logrus.Entry) error {
		settings, err := parseCycleArgs(c.Args())
		if err != nil {
			return c.Send(err.Error())
		}
		cycle, err := adminService.CreateCycle(ctx, c.Sender().ID, settings)
		if err != nil {
			return fail(c, logCtx, err, "Cycle creation")
		}
		logCtx.WithField("cycle_id", cycle.ID).Info("Cycle created")
		return c.Send("Created.\n" + formatCycle(cycle))
	})

	guard("/enroll", func(c telebot.Context, logCtx *logrus.Entry) error {
		enrollment, err := parseEnrollArgs(c.Args())
		if err != nil {
			return c.Send(err.Error())
		}
		p, err := adminService.EnrollParticipant(ctx, c.Sender().ID, enrollment)
		if err != nil {
			return fail(c, logCtx, err, "Enrollment")
		}
		logCtx.WithFields(logrus.Fields{"participant_id": p.ID, "cycle_id": p.CycleID, "role": p.Role}).Info("Participant enrolled")
		return c.Send(fmt.Sprintf("Enrolled %s as %s with %d slot(s). ID: %s", p.DisplayName, strings.ToLower(string(p.Role)), p.Capacity(), p.ID))
	})

	guard("/schedule", func(c telebot.Context, logCtx *logrus.Entry) error {
		cycleID, start, end, err := parseScheduleArgs(c.Args())
		if err != nil {
			return c.Send(err.Error())
		}
		ev, err := adminService.ScheduleBoundary(ctx, c.Sender().ID, cycleID, start, end)
		if err != nil {
			return fail(c, logCtx, err, "Scheduling")
		}
		logCtx.WithFields(logrus.Fields{"event_id": ev.ID, "cycle_id": cycleID}).Info("Boundary event scheduled")
		return c.Send(fmt.Sprintf("Round window %s to %s scheduled. Event ID: %s",
			ev.StartTime.Format(time.RFC3339), ev.EndTime.Format(time.RFC3339), ev.ID))
	})

	guard("/cycle", func(c telebot.Context, logCtx *logrus.Entry) error {
		args := c.Args()
		if len(args) != 1 {
			return c.Send("usage: /cycle <cycleID>")
		}
		cycle, err := adminService.GetCycle(ctx, c.Sender().ID, args[0])
		if err != nil {
			return fail(c, logCtx, err, "Cycle lookup")
		}
		return c.Send(formatCycle(cycle))
	})

	guard("/tick", func(c telebot.Context, logCtx *logrus.Entry) error {
		report, err := cycles.Tick(ctx)
		if err != nil {
			logCtx.WithError(err).Error("Manual tick failed")
			return c.Send(fmt.Sprintf("Tick failed: %s", err.Error()))
		}
		return c.Send(formatTickReport(report))
	})
}
