package rtos

import "log"

// RegisterISR installs a user handler for one device interrupt line,
// clears any stale pending state and enables the line at the controller.
// It reports false when the line is out of range, the handler is nil, or a
// handler is already installed.
func (k *Kernel) RegisterISR(irq int, handler ISRFunc) bool {
	if irq < 0 || irq >= NumIRQ || handler == nil {
		return false
	}
	if k.isrTable[irq] != nil {
		return false
	}

	k.isrTable[irq] = handler
	k.port.ClearPendingIRQ(irq)
	k.port.EnableIRQ(irq)
	return true
}

// RemoveISR uninstalls the handler for one device interrupt line, clearing
// pending state and disabling the line. It reports false when no handler is
// installed.
func (k *Kernel) RemoveISR(irq int) bool {
	if irq < 0 || irq >= NumIRQ {
		return false
	}
	if k.isrTable[irq] == nil {
		return false
	}

	k.isrTable[irq] = nil
	k.port.ClearPendingIRQ(irq)
	k.port.DisableIRQ(irq)
	return true
}

// DispatchISR is the common trampoline every vectored entry funnels
// through. It marks the kernel as inside an ISR, runs the user handler,
// restores the mode, clears the line, and, when the handler released a
// kernel object, reschedules immediately so the released task can preempt
// at exception return.
//
// An interrupt with no installed handler is a programming error; it is
// logged and otherwise ignored.
func (k *Kernel) DispatchISR(irq int) {
	if irq < 0 || irq >= NumIRQ {
		return
	}

	previous := k.state
	k.state = StateISR

	if handler := k.isrTable[irq]; handler != nil {
		handler()
	} else {
		log.Printf("[rtos] unexpected interrupt %d", irq)
	}

	k.state = previous
	k.port.ClearPendingIRQ(irq)

	if k.scheduleFromISR {
		k.scheduleFromISR = false
		k.Yield()
	}
}
