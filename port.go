package rtos

// Port abstracts the machine facilities the kernel consumes. A port is the
// only boundary between the portable kernel and the silicon (or, for
// Machine, the simulation of it):
//
//   - the low-priority software exception used for context switching
//     (pended by TriggerContextSwitch, cleared by the hardware on entry)
//   - the global interrupt mask
//   - the device interrupt controller
//   - the periodic tick timer
//
// Every Port method is called with the kernel's concurrency discipline
// already applied; implementations do not need their own locking.
type Port interface {
	// TriggerContextSwitch pends the context-switch exception. The
	// exception is taken as soon as interrupts are enabled and no
	// higher-priority exception is active; implementations must order the
	// pend against earlier memory accesses (ISB/DSB on a real core).
	TriggerContextSwitch()

	// SetContextSwitchPriority programs the interrupt-controller priority
	// of the context-switch exception. Init sets it to the lowest
	// priority so any device ISR can preempt a switch in progress.
	SetContextSwitchPriority(prio uint8)

	// SetTickPriority programs the priority of the tick exception. Init
	// places it above the context-switch exception and below device ISRs.
	SetTickPriority(prio uint8)

	// ConfigureTick programs the periodic tick timer to hz ticks per
	// second.
	ConfigureTick(hz uint32)

	// DisableInterrupts masks all interrupts; EnableInterrupts unmasks
	// them. Exceptions raised while masked stay pending and are taken
	// when the mask drops.
	DisableInterrupts()
	EnableInterrupts()

	// WaitForInterrupt idles the CPU until an interrupt is pending. The
	// idle task and the default return hook spin on it.
	WaitForInterrupt()

	// ClearPendingIRQ, EnableIRQ and DisableIRQ operate on one device
	// interrupt line at the controller.
	ClearPendingIRQ(irq int)
	EnableIRQ(irq int)
	DisableIRQ(irq int)

	// FuncAddress returns the code address of a task entry point, used as
	// the return program counter in the task's initial stack frame. Each
	// call may intern the function; the returned address must be unique,
	// stable, and distinct from the return-hook address.
	FuncAddress(fn TaskFunc) uint32
}
