// Package publisher delivers the weekly digest.
package publisher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ryosukesatoh/autumn/internal/config"
	"github.com/ryosukesatoh/autumn/internal/digest"
)

// Publisher publishes a digest to some output destination. An empty digest
// is a no-op, never an error.
type Publisher interface {
	Publish(ctx context.Context, d *digest.Digest) error
}

// New creates the publisher selected by cfg.Publisher.Type.
func New(cfg *config.Config, logger *zap.Logger) (Publisher, error) {
	pc := cfg.Publisher
	switch pc.Type {
	case "stdout":
		return NewStdoutPublisher(), nil
	case "email":
		return NewEmailPublisher(pc.Email, cfg.Digest.Subject, cfg.Digest.AttachmentName), nil
	case "discord":
		return NewDiscordPublisher(pc.Discord.WebhookURL), nil
	case "web":
		return NewWebPublisher(pc.Web.Addr, logger), nil
	default:
		return nil, fmt.Errorf("publisher: unsupported type %q", pc.Type)
	}
}
