package dialer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	twilio "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/thehypeloop/dialmate/backend/internal/config"
)

// Dialer places outbound calls. Implementations must be safe for concurrent
// use; Place returns once the call has been handed to the carrier, not when
// it is answered.
type Dialer interface {
	Place(ctx context.Context, phone string) error
}

// NoopDialer logs the dial and succeeds. Used in development and whenever no
// telephony provider is configured.
type NoopDialer struct {
	logger zerolog.Logger
}

func NewNoopDialer(logger zerolog.Logger) *NoopDialer {
	return &NoopDialer{logger: logger}
}

func (d *NoopDialer) Place(_ context.Context, phone string) error {
	d.logger.Info().Str("phone", phone).Msg("noop dialer: call placed")
	return nil
}

// TwilioDialer places calls through the Twilio voice API.
type TwilioDialer struct {
	client *twilio.RestClient
	from   string
	logger zerolog.Logger
}

func NewTwilioDialer(accountSID, authToken, from string, logger zerolog.Logger) *TwilioDialer {
	restClient := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioDialer{
		client: restClient,
		from:   from,
		logger: logger,
	}
}

func (d *TwilioDialer) Place(ctx context.Context, phone string) error {
	params := &openapi.CreateCallParams{}
	params.SetTo("+" + phone)
	params.SetFrom(d.from)
	params.SetUrl("http://demo.twilio.com/docs/voice.xml")

	call, err := d.client.Api.CreateCall(params)
	if err != nil {
		return fmt.Errorf("failed to place call to %s: %w", phone, err)
	}

	sid := ""
	if call.Sid != nil {
		sid = *call.Sid
	}
	d.logger.Info().Str("phone", phone).Str("call_sid", sid).Msg("call placed via twilio")
	return nil
}

// New selects a dialer implementation from configuration.
func New(cfg *config.Config, logger zerolog.Logger) Dialer {
	if cfg.DialerMode == "twilio" {
		return NewTwilioDialer(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)
	}
	return NewNoopDialer(logger)
}
