package notification

import (
	"fmt"

	"github.com/k3a/html2text"
	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tempoapp/tempo-worker/internal/logger"
)

// EmailSender delivers notifications over a shoutrrr service URL
// (smtp://... for the email channel; any shoutrrr scheme works).
type EmailSender struct {
	sender *router.ServiceRouter
	log    logger.Logger
}

// NewEmailSender creates a sender from a shoutrrr URL.
func NewEmailSender(serviceURL string, log logger.Logger) (*EmailSender, error) {
	sender, err := shoutrrr.CreateSender(serviceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification sender: %w", err)
	}
	return &EmailSender{sender: sender, log: log}, nil
}

// Send delivers one notification. HTML in the message body is flattened
// to plain text before sending.
func (e *EmailSender) Send(n *Notification) error {
	body := html2text.HTML2Text(n.Message)
	params := types.Params{"title": n.Title}
	errs := e.sender.Send(body, &params)
	for _, err := range errs {
		if err != nil {
			e.log.Error("email delivery failed",
				logger.String("notification_id", n.ID),
				logger.Error(err))
			return fmt.Errorf("failed to send notification %s: %w", n.ID, err)
		}
	}
	return nil
}
