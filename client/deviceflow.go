package client

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hearthview/auth/api"
	serrors "github.com/hearthview/auth/errors"
)

// Device flow terminal failures.
var (
	ErrFlowExpired = errors.New("device flow expired before authorization")
	ErrFlowDenied  = errors.New("device code was rejected")
)

// DeviceFlow runs the device side of a device authorization flow: Begin
// obtains the code pair, Wait polls until the user approves on another
// device.
type DeviceFlow struct {
	client     *Client
	deviceType string

	deviceCode string
	interval   time.Duration
}

// NewDeviceFlow creates a flow for a device of the given type ("tv",
// "phone", ...).
func NewDeviceFlow(c *Client, deviceType string) *DeviceFlow {
	return &DeviceFlow{client: c, deviceType: deviceType}
}

// Begin requests a device_code/user_code pair. The returned response carries
// the user code and verification URL to display to the user.
func (f *DeviceFlow) Begin(ctx context.Context) (*api.DeviceCodeResponse, error) {
	resp, err := f.client.CreateDeviceCode(ctx, f.deviceType)
	if err != nil {
		return nil, err
	}

	f.deviceCode = resp.DeviceCode
	f.interval = time.Duration(resp.Interval) * time.Second
	if f.interval <= 0 {
		f.interval = 5 * time.Second
	}

	return resp, nil
}

// Wait polls the service at the advertised interval until the flow is
// authorized, expires, or ctx is canceled. On success the session token is
// installed on the client and returned.
func (f *DeviceFlow) Wait(ctx context.Context) (*api.PollDeviceCodeResponse, error) {
	if f.deviceCode == "" {
		return nil, errors.New("Begin must be called before Wait")
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		resp, err := f.client.PollDeviceCode(ctx, f.deviceCode)
		if err != nil {
			// Transient transport failures should not abort the flow;
			// the next tick retries.
			log.Debug().Err(err).Msg("Device code poll failed, will retry")

			continue
		}

		switch resp.Status {
		case serrors.StatusAuthorizationPending:
			continue
		case serrors.StatusAuthorized:
			f.client.SetSessionToken(resp.SessionToken)

			return resp, nil
		case serrors.StatusExpiredToken, serrors.StatusExpiredCode:
			return nil, ErrFlowExpired
		default:
			return nil, ErrFlowDenied
		}
	}
}
