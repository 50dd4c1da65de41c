package twofactor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optexity/internal/application/port/output"
	"optexity/internal/domain/entity"
	"optexity/internal/infrastructure/logger"
	"optexity/internal/testutil"
)

func emailAction() *entity.TwoFactorAuthAction {
	return &entity.TwoFactorAuthAction{
		Email:              &entity.EmailTwoFactorAuth{IntegrationID: "int-1", EmailAddress: "noreply@bank.test"},
		OutputVariableName: "otp",
		MaxWaitTime:        60,
	}
}

func TestExecute_UsesRecordedStart(t *testing.T) {
	secrets := &testutil.Secrets{Code: &output.TwoFactorCode{MessageID: "m1", Code: "123456"}}
	uc := New(secrets, logger.NewNop())
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mem := entity.NewMemory(nil)
	mem.AutomationState.StartTwoFactorAt = &start

	require.NoError(t, uc.Execute(context.Background(), emailAction(), mem))

	assert.Equal(t, []string{"123456"}, mem.Variables.GeneratedVariables["otp"])
	assert.Nil(t, mem.AutomationState.StartTwoFactorAt)
	require.Len(t, secrets.Requests, 1)
	req := secrets.Requests[0]
	assert.Equal(t, output.TwoFactorEmail, req.Channel)
	assert.Equal(t, "noreply@bank.test", req.EmailAddress)
	assert.Equal(t, start, req.Start)
	assert.Equal(t, start.Add(time.Minute), req.End)
}

func TestExecute_DefaultsToNow(t *testing.T) {
	secrets := &testutil.Secrets{Code: &output.TwoFactorCode{Code: "1"}}
	uc := New(secrets, logger.NewNop())
	fixed := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	uc.now = func() time.Time { return fixed }
	action := &entity.TwoFactorAuthAction{
		Slack:              &entity.SlackTwoFactorAuth{IntegrationID: "s", ChannelID: "C01"},
		OutputVariableName: "code",
		MaxWaitTime:        10,
	}

	require.NoError(t, uc.Execute(context.Background(), action, entity.NewMemory(nil)))

	assert.Equal(t, output.TwoFactorSlack, secrets.Requests[0].Channel)
	assert.Equal(t, "C01", secrets.Requests[0].ChannelID)
	assert.Equal(t, fixed, secrets.Requests[0].Start)
}

func TestExecute_EmptyCode(t *testing.T) {
	uc := New(&testutil.Secrets{Code: &output.TwoFactorCode{}}, logger.NewNop())
	start := time.Now()
	mem := entity.NewMemory(nil)
	mem.AutomationState.StartTwoFactorAt = &start

	err := uc.Execute(context.Background(), emailAction(), mem)

	assert.ErrorIs(t, err, ErrNoCode)
	assert.Nil(t, mem.AutomationState.StartTwoFactorAt)
}

func TestExecute_ServiceError(t *testing.T) {
	uc := New(&testutil.Secrets{Err: errors.New("401")}, logger.NewNop())

	err := uc.Execute(context.Background(), emailAction(), entity.NewMemory(nil))

	assert.ErrorContains(t, err, "401")
}
