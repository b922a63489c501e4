package scheduler

import (
	"errors"
	"time"

	"praypal/internal/task/engine"
	logx "praypal/pkg/logx"
)

const enqueueWarnThrottle = 5 * time.Second

func (s *Service) reportEnqueueError(name string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, engine.ErrStopping) || errors.Is(err, engine.ErrStopped) {
		s.log.Debug("trigger dropped during shutdown", logx.String("name", name), logx.Err(err))
		return
	}

	now := time.Now()
	s.enqMu.Lock()
	last := s.lastEnqWarn[name]
	if !last.IsZero() && now.Sub(last) < enqueueWarnThrottle {
		s.enqMu.Unlock()
		return
	}
	s.lastEnqWarn[name] = now
	// One-shot names are unique; keep the throttle map from growing without bound.
	if len(s.lastEnqWarn) > 1024 {
		for k, v := range s.lastEnqWarn {
			if now.Sub(v) >= enqueueWarnThrottle {
				delete(s.lastEnqWarn, k)
			}
		}
	}
	s.enqMu.Unlock()

	s.log.Warn("trigger failed to enqueue task", logx.String("name", name), logx.Err(err))
}
