package rtos

// Semaphore is a binary, edge-triggered latch intended for ISR-to-task and
// task-to-task signaling. It is created taken: the first Take blocks until
// some other context Gives, and a Give with no recorded waiter is lost.
//
// At most one task may wait on a semaphore at a time. A second concurrent
// Take overwrites the recorded waiter; that single-waiter rule is a usage
// contract, not an enforced invariant.
type Semaphore struct {
	k      *Kernel
	taken  bool
	waiter *Task
}

// InitSemaphore prepares a caller-owned semaphore for use: taken, with no
// waiter recorded.
func (k *Kernel) InitSemaphore(s *Semaphore) {
	s.k = k
	s.taken = true
	s.waiter = nil
}

// Take acquires the semaphore, blocking the calling task while it is taken.
// ticksToWait bounds the wait in ticks; NoTimeout waits forever. Take
// reports whether the semaphore was acquired; false means the budget
// elapsed, or the caller was not in a position to block (not the running
// task, or inside an ISR).
func (s *Semaphore) Take(ticksToWait uint32) bool {
	k := s.k

	// Blocking inside a handler would wedge the interrupt; fail fast.
	if k.state == StateISR {
		return false
	}

	cur := k.currentTask
	if cur == nil || cur.state != TaskRunning {
		return false
	}

	if ticksToWait != NoTimeout {
		cur.remainingBlockedTicks = ticksToWait
	}

	for {
		if s.taken {
			s.waiter = cur

			if ticksToWait != NoTimeout && cur.remainingBlockedTicks == 0 {
				k.setError(ErrTimeout, "Take")
				return false
			}

			cur.state = TaskBlocked
			k.Yield()
			// Resumed by a give or by the tick service; re-evaluate.
			continue
		}

		s.taken = true
		cur.remainingBlockedTicks = 0
		return true
	}
}

// Give releases the semaphore and promotes the recorded waiter to ready.
// It has effect only when the semaphore is taken and a waiter is recorded;
// otherwise the give is lost. From interrupt context Give arms the
// trampoline's reschedule, so the waiter can preempt as soon as the handler
// returns.
func (s *Semaphore) Give() {
	k := s.k
	cur := k.currentTask

	if cur == nil || cur.state != TaskRunning || !s.taken || s.waiter == nil {
		return
	}

	s.taken = false
	s.waiter.state = TaskReady
	s.waiter.remainingBlockedTicks = 0

	if k.state == StateISR {
		k.scheduleFromISR = true
	}
}
