package services

import (
	"context"

	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"github.com/dmitrijs2005/idkeeper/internal/server/models"
)

// Notifier delivers a verification secret to its address out of band.
type Notifier interface {
	Notify(ctx context.Context, secret *models.VerificationSecret) error
}

// LogNotifier writes verification links to the log instead of sending mail.
type LogNotifier struct {
	logger  logging.Logger
	baseURL string
}

func NewLogNotifier(logger logging.Logger, baseURL string) *LogNotifier {
	return &LogNotifier{logger: logger.With("module", "notifier"), baseURL: baseURL}
}

func (n *LogNotifier) Notify(ctx context.Context, s *models.VerificationSecret) error {
	n.logger.Info(ctx, "verification secret issued",
		"email", s.Email,
		"purpose", string(s.Purpose),
		"site", s.Site,
		"link", n.baseURL+"/verify?token="+s.Token,
	)
	return nil
}
