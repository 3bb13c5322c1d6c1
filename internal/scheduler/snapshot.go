package scheduler

// Snapshot returns the diagnostic view: lifecycle state, queue shape
// and a copy of the bounded execution history.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	qlen := s.q.Len()
	tombs := s.q.Tombstones()
	s.mu.Unlock()

	s.smu.Lock()
	hist := make([]HistoryItem, len(s.history))
	copy(hist, s.history)
	stats := Stats{
		TotalScheduled: s.totalScheduled,
		TotalExecuted:  s.totalExecuted,
		TasksInQueue:   qlen,
		LastExecution:  s.lastExecution,
	}
	s.smu.Unlock()

	return Snapshot{
		Running:      s.Running(),
		PollInterval: s.cfg.PollInterval,
		QueueLen:     qlen,
		Tombstones:   tombs,
		Stats:        stats,
		History:      hist,
	}
}
