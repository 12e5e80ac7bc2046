// internal/refresher/refresher.go
package refresher

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/user/studychat/internal/chat"
)

// Refresher re-fetches the current category's session list on a cron
// schedule so a long-running chat screen keeps up with titles and activity
// changes made elsewhere.
type Refresher struct {
	ctrl     *chat.Controller
	schedule string
	cron     *cron.Cron
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a Refresher with a cron schedule expression ("@every 30s",
// "*/5 * * * *", ...).
func New(ctrl *chat.Controller, schedule string) *Refresher {
	return &Refresher{
		ctrl:     ctrl,
		schedule: schedule,
		cron:     cron.New(cron.WithParser(cronParser)),
	}
}

// Start registers the refresh entry and starts the cron ticker. The
// refresh is a no-op until the controller has a category.
func (r *Refresher) Start() error {
	_, err := r.cron.AddFunc(r.schedule, r.refresh)
	if err != nil {
		return err
	}
	r.cron.Start()
	slog.Info("session refresh scheduled", "schedule", r.schedule)
	return nil
}

// Stop stops the cron ticker.
func (r *Refresher) Stop() {
	r.cron.Stop()
}

func (r *Refresher) refresh() {
	category := r.ctrl.Category()
	if category == "" {
		return
	}
	if _, err := r.ctrl.Directory().Fetch(context.Background(), category); err != nil {
		slog.Warn("scheduled session refresh failed", "category", category, "error", err)
		return
	}
	slog.Debug("session list refreshed", "category", category)
}
