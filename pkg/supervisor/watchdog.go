package supervisor

import "time"

// scanHealth kills any runtime that has shown no store progress for
// handlerTimeout, recording it Crashed. Invoked on the cron schedule set up
// in New; exposed as a method rather than a free function purely so tests
// can call it synchronously instead of waiting on the schedule.
func (s *Supervisor) scanHealth() {
	timeout := s.cfg.Runtime.HandlerTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	s.mu.Lock()
	stale := make([]string, 0)
	for agent, ra := range s.agents {
		if time.Since(ra.rt.LastProgress()) > timeout {
			stale = append(stale, agent)
		}
	}
	s.mu.Unlock()

	for _, agent := range stale {
		s.logger.Error("handler timeout exceeded, killing runtime", "agent", agent, "timeout", timeout)
		if err := s.Kill(agent); err != nil {
			s.logger.Error("health watchdog kill failed", "agent", agent, "error", err)
		}
		// Kill already recorded Stopped/ExitCancelled; a timeout kill is a
		// crash, not a clean stop, so overwrite both.
		s.lifecycle.setStatusWithExit(agent, StatusCrashed, ExitCrashed)
	}
}
