package rtos

// Delay suspends the calling task for the given number of ticks. The tick
// service pays the wait down and promotes the task back to ready when it
// reaches zero, so the actual delay is quantized to tick boundaries.
//
// Delay returns ErrDelayFromISR when called from interrupt context, and
// returns immediately when ticks is zero or the caller is not the running
// task.
func (k *Kernel) Delay(ticks uint32) Error {
	if k.state == StateISR {
		k.setError(ErrDelayFromISR, "Delay")
		return ErrDelayFromISR
	}

	cur := k.currentTask
	if cur == nil || cur.state != TaskRunning || ticks == 0 {
		return ErrNone
	}

	k.EnterCritical()
	cur.state = TaskBlocked
	cur.remainingBlockedTicks = ticks
	k.ExitCritical()

	// Force a switch away; the tick service resumes the task here.
	k.Yield()
	return ErrNone
}
