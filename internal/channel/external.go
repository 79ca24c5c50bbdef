package channel

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"alarm-gateway/internal/gateway"
	"alarm-gateway/internal/payload"
	"alarm-gateway/internal/timez"
	domainerrors "alarm-gateway/pkg/errors"
)

// ExternalSender implements gateway.Sender by substituting $CODE/$TIME/
// $TYPE into the payload's argument string and spawning the configured
// program.
type ExternalSender struct {
	zone *timez.Zone
}

func NewExternalSender(zone *timez.Zone) *ExternalSender {
	if zone == nil {
		zone = timez.Default
	}
	return &ExternalSender{zone: zone}
}

var _ gateway.Sender = (*ExternalSender)(nil)

func alarmType(isRealAlarm bool) string {
	if isRealAlarm {
		return "Einsatzalarmierung"
	}
	return "Probealarm"
}

func (s *ExternalSender) Send(ctx context.Context, msg gateway.Message) error {
	ext, ok := msg.Payload.(*payload.External)
	if !ok {
		return domainerrors.NewFatalSend("external sender received a non-external payload", nil)
	}

	args := ext.Substitute(msg.Code, s.zone.FormatLocal(msg.EventTime), alarmType(msg.IsRealAlarm))
	cmd := exec.CommandContext(ctx, ext.Command, strings.Fields(args)...)

	out, err := cmd.CombinedOutput()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return domainerrors.NewFatalSend(fmt.Sprintf("external program exited %d: %s", exitErr.ExitCode(), string(out)), err)
		}
		return domainerrors.NewFatalSend("external program failed to start", err)
	}
	return nil
}
