package main

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"dayplan/internal/ics"
	appLog "dayplan/internal/log"
	"dayplan/internal/model"
	"dayplan/internal/planner"
	"dayplan/internal/tz"
)

// exportJob publishes the calendar feed to a file.
type exportJob struct {
	svc   *planner.Service
	zones tz.Resolver
	path  string
	days  int
	now   func() time.Time
}

// run exports every rule plus the authored tasks of the next days, starting
// today in the home zone.
func (j *exportJob) run(ctx context.Context) error {
	home, err := j.zones.Resolve(tz.Local)
	if err != nil {
		return err
	}
	from := model.DayOf(j.now().In(home))
	to := from.AddDays(j.days - 1)

	body, err := j.svc.ExportICS(ctx, from, to)
	if err != nil {
		return fmt.Errorf("export calendar: %w", err)
	}
	if err := ics.Publish(j.path, body); err != nil {
		return fmt.Errorf("publish %s: %w", j.path, err)
	}
	appLog.Info("calendar published", "path", j.path, "from", from.String(), "to", to.String(), "bytes", len(body))
	return nil
}

// startExportCron schedules job on spec. A bad spec falls back to every 30
// minutes. The returned cron is already running.
func startExportCron(ctx context.Context, spec string, job *exportJob) *cron.Cron {
	c := cron.New()
	fn := func() {
		if err := job.run(ctx); err != nil {
			appLog.Error("scheduled calendar export failed", err, "path", job.path)
		}
	}
	if _, err := c.AddFunc(spec, fn); err != nil {
		appLog.Warn("invalid export cron; falling back to every 30 minutes", "cron", spec, "err", err)
		c = cron.New()
		_, _ = c.AddFunc("@every 30m", fn)
	}
	c.Start()
	return c
}
