package cache

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/rijughosh01/developer-social-platform-sub000/pkg/logger"
)

// Purger is anything holding expiring in-process state.
type Purger interface {
	Purge() int
}

// StartJanitor runs every purger on schedule until the returned cron is
// stopped.
func StartJanitor(schedule string, purgers ...Purger) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(
		schedule, func() {
			removed := 0
			for _, p := range purgers {
				removed += p.Purge()
			}
			if removed > 0 {
				logger.Debug("Purged expired entries", "removed", removed)
			}
		},
	)
	if err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	c.Start()
	return c, nil
}
