// AngelaMos | 2026
// email.go

package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/carterperez-dev/authcore/internal/event"
)

// Sender delivers transactional mail. The default implementation only
// logs; a real provider slots in behind the same interface.
type Sender interface {
	SendVerification(ctx context.Context, to, token string) error
	SendPasswordReset(ctx context.Context, to, token string) error
	SendReuseAlert(ctx context.Context, userID string) error
}

type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendVerification(
	_ context.Context,
	to, token string,
) error {
	s.logger.Info("email verification requested",
		"to", to,
		"token", token,
	)
	return nil
}

func (s *LogSender) SendPasswordReset(
	_ context.Context,
	to, token string,
) error {
	s.logger.Info("password reset requested",
		"to", to,
		"token", token,
	)
	return nil
}

func (s *LogSender) SendReuseAlert(_ context.Context, userID string) error {
	s.logger.Warn("refresh token reuse detected for account",
		"user_id", userID,
	)
	return nil
}

// Subscribe wires the sender to the bus events it cares about.
func Subscribe(bus *event.Bus, sender Sender) {
	bus.Subscribe(event.UserRegisteredName, func(
		ctx context.Context,
		e event.Event,
	) error {
		registered, ok := e.(event.UserRegistered)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", e)
		}
		return sender.SendVerification(
			ctx,
			registered.Email,
			registered.VerificationToken,
		)
	})

	bus.Subscribe(event.PasswordResetRequestedName, func(
		ctx context.Context,
		e event.Event,
	) error {
		reset, ok := e.(event.PasswordResetRequested)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", e)
		}
		return sender.SendPasswordReset(ctx, reset.Email, reset.ResetToken)
	})

	bus.Subscribe(event.TokenReuseDetectedName, func(
		ctx context.Context,
		e event.Event,
	) error {
		reuse, ok := e.(event.TokenReuseDetected)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", e)
		}
		return sender.SendReuseAlert(ctx, reuse.UserID)
	})
}
