package rtos

// schedule sets nextTask to the highest-priority runnable task, falling
// back to the idle task when every user task is blocked, then pends the
// context-switch exception.
//
// The task table is sorted by ascending priority, so the tasks of one
// priority form a contiguous run. A per-priority cursor rotates inside each
// run: the chosen task's cursor position advances so the same task is not
// picked again while a peer is runnable, and a blocked task is skipped
// without costing it its slot.
func (k *Kernel) schedule() {
	if k.state == StateReset {
		// First decision: the table is sorted, so entry 0 has the
		// highest priority. The cursors start from scratch.
		if k.numTasks > 0 {
			k.currentTask = k.taskList[0]
		} else {
			k.currentTask = &k.idle
		}
		for i := range k.schedCursor {
			k.schedCursor[i] = 0
		}
	} else {
		var offset, iterated uint8
		prio := 0
		found := false

		for iterated < k.numTasks {
			run := k.tasksPerPriority[prio]
			var scanned uint8
			for scanned < run {
				t := k.taskList[k.schedCursor[prio]+offset]
				k.schedCursor[prio] = (k.schedCursor[prio] + 1) % run
				if t.state != TaskBlocked {
					k.nextTask = t
					found = true
					break
				}
				scanned++
			}
			if found {
				break
			}
			// The whole run is blocked; fall through to the next
			// priority.
			offset += run
			iterated += run
			prio++
		}

		if !found {
			k.nextTask = &k.idle
		}
	}

	k.port.TriggerContextSwitch()
}

// Yield forces a scheduling decision and pends the context-switch
// exception. From task context the switch is taken as soon as interrupts
// are enabled and the current instruction retires.
func (k *Kernel) Yield() {
	k.schedule()
}

// NextContext is the portable half of the context-switch exception: the
// handler saves the outgoing callee-saved registers, calls NextContext with
// the resulting stack pointer, and restores from the returned one.
//
// On the very first switch the kernel is still in the reset state: the
// incoming stack pointer belongs to the startup stack and is discarded,
// since that context is never restored.
func (k *Kernel) NextContext(currentSP uint32) uint32 {
	if k.state == StateReset {
		k.currentTask.state = TaskRunning
		k.state = StateNormal
		return k.currentTask.stackPointer
	}

	k.currentTask.stackPointer = currentSP

	// Only a running task is demoted; a task that blocked on its way
	// here stays blocked.
	if k.currentTask.state == TaskRunning {
		k.currentTask.state = TaskReady
	}

	k.currentTask = k.nextTask
	k.currentTask.state = TaskRunning
	return k.currentTask.stackPointer
}
