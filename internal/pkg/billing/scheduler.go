package billing

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartPayoutScheduler runs the payout sweep on a fixed interval, in addition
// to the per-webhook sweep, so pending transfers keep moving during quiet
// periods without webhook traffic. The caller owns the returned scheduler and
// should Shutdown it on exit.
func (s *Service) StartPayoutScheduler(interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			s.SweepPendingTransfers(ctx)
		}),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	log.Printf("billing: payout sweep scheduled every %s", interval)
	return sched, nil
}
