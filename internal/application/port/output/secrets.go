package output

import (
	"context"
	"time"
)

type TwoFactorChannel string

const (
	TwoFactorEmail TwoFactorChannel = "email"
	TwoFactorSlack TwoFactorChannel = "slack"
)

type TwoFactorRequest struct {
	Channel       TwoFactorChannel
	IntegrationID string
	EmailAddress  string
	ChannelID     string
	Start         time.Time
	End           time.Time
}

type TwoFactorCode struct {
	MessageID   string
	MessageText string
	Code        string
}

type SecretsPort interface {
	FetchTwoFactorCode(ctx context.Context, req TwoFactorRequest) (*TwoFactorCode, error)
}
