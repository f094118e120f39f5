package scheduler

import (
	"context"
	"time"

	"breakbot/internal/logger"
)

// Aligned fires a task shortly after every bar-close boundary of Interval.
// Offset delays the wake-up past the boundary so the exchange has published
// the closed bar by the time the task runs.
type Aligned struct {
	Interval       time.Duration
	Offset         time.Duration
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func NewAligned(ctx context.Context, interval, offset time.Duration) *Aligned {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Aligned{
		Interval: interval,
		Offset:   offset,
		ctx:      ctx,
		nowFn:    time.Now,
	}
}

// Start blocks until ctx is done, invoking task with the boundary time of
// the bar that just closed.
func (s *Aligned) Start(task func(closed time.Time)) {
	if s == nil || task == nil {
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("scheduler: invalid interval=%s, exit", s.Interval)
		return
	}
	if s.Offset < 0 {
		s.Offset = 0
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	startAt := s.nowFn().UTC()
	logger.Infof("scheduler: started interval=%s offset=%s run_immediately=%v at=%s",
		s.Interval, s.Offset, s.RunImmediately, startAt.Format(time.RFC3339))

	if s.RunImmediately {
		task(startAt.Truncate(s.Interval))
	}

	for {
		now := s.nowFn().UTC()
		boundary := now.Truncate(s.Interval).Add(s.Interval)
		wait := boundary.Add(s.Offset).Sub(now)

		logger.Infof("scheduler: 距离K线收盘=%s (收盘=%s) 将在 %s 后执行",
			boundary.Sub(now).Truncate(time.Second), boundary.Format(time.RFC3339), wait.Truncate(time.Second))

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-s.ctx.Done():
				timer.Stop()
				logger.Infof("scheduler: ctx done, exit")
				return
			case <-timer.C:
			}
		}
		task(boundary)
	}
}
