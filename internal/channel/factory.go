package channel

import (
	"fmt"

	"alarm-gateway/internal/gateway"
	"alarm-gateway/internal/login"
	"alarm-gateway/internal/payload"
	"alarm-gateway/internal/timez"
	domainerrors "alarm-gateway/pkg/errors"
)

// NewSenderFactory builds the gateway.SenderFactory wiring every concrete
// channel implementation to its gateway-kind. lookup resolves the REST
// channel's auxiliary vendor names; it is unused for the other kinds.
func NewSenderFactory(zone *timez.Zone, lookup VendorLookup) gateway.SenderFactory {
	return func(kind payload.GatewayKind, creds login.Credentials) (gateway.Sender, error) {
		switch kind {
		case payload.KindEmail:
			return NewSmtpSender(zone), nil
		case payload.KindRest:
			return NewRestSender(RestConfig{
				Endpoint:       creds.Endpoint,
				APIToken:       creds.APIToken,
				OrganizationID: creds.OrganizationID,
				Zone:           zone,
			}, lookup), nil
		case payload.KindExternal:
			return NewExternalSender(zone), nil
		default:
			return nil, domainerrors.NewConfigError(fmt.Sprintf("no channel implementation for gateway kind %q", kind), nil)
		}
	}
}
