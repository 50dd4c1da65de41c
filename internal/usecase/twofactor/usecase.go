package twofactor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"optexity/internal/application/port/output"
	"optexity/internal/domain/entity"
)

var ErrNoCode = errors.New("no 2FA code found")

// UseCase fetches one-time codes from the secrets service.
type UseCase struct {
	secrets output.SecretsPort
	logger  output.LoggerPort
	now     func() time.Time
}

func New(secrets output.SecretsPort, logger output.LoggerPort) *UseCase {
	return &UseCase{secrets: secrets, logger: logger, now: time.Now}
}

// Execute looks up the code sent between the recorded timer start (or now)
// and start plus max_wait_time and stores it as a generated variable. The
// timer is cleared whatever the outcome.
func (uc *UseCase) Execute(ctx context.Context, action *entity.TwoFactorAuthAction, mem *entity.Memory) error {
	start := uc.now().UTC()
	if mem.AutomationState.StartTwoFactorAt != nil {
		start = *mem.AutomationState.StartTwoFactorAt
	}
	defer func() { mem.AutomationState.StartTwoFactorAt = nil }()

	req := output.TwoFactorRequest{
		Start: start,
		End:   start.Add(action.MaxWait()),
	}
	switch {
	case action.Email != nil:
		req.Channel = output.TwoFactorEmail
		req.IntegrationID = action.Email.IntegrationID
		req.EmailAddress = action.Email.EmailAddress
	case action.Slack != nil:
		req.Channel = output.TwoFactorSlack
		req.IntegrationID = action.Slack.IntegrationID
		req.ChannelID = action.Slack.ChannelID
	default:
		return entity.ConfigErrorf("two_fa_action has no channel")
	}

	uc.log(ctx).Info("Fetching 2FA code", "channel", req.Channel, "start", req.Start, "end", req.End)

	code, err := uc.secrets.FetchTwoFactorCode(ctx, req)
	if err != nil {
		return fmt.Errorf("fetch 2FA code: %w", err)
	}
	if code == nil || code.Code == "" {
		return ErrNoCode
	}

	mem.SetGenerated(action.OutputVariableName, []string{code.Code})
	uc.log(ctx).Debug("2FA code stored", "variable", action.OutputVariableName, "message_id", code.MessageID)
	return nil
}

func (uc *UseCase) log(ctx context.Context) output.LoggerPort {
	return output.LoggerFromContext(ctx, uc.logger)
}
