package rtos

import "log"

// Machine is a deterministic host-side simulation of the single-core MCU
// the kernel targets, and the Port it is wired to. Task entry points become
// goroutines, but at most one context (a task or the machine itself) ever
// runs at a time, handing a baton over unbuffered channels; the simulation
// is sequential and repeatable.
//
// Exceptions are delivered at instruction boundaries, the same granularity
// at which a cycle emulator services interrupts between instructions. A
// task reaches a boundary by blocking in a kernel call, executing
// WaitForInterrupt, or calling Checkpoint from a busy loop.
//
// The context-switch exception is modeled faithfully: the machine stacks
// the outgoing callee-saved registers and exception-return value onto the
// outgoing task's stack words, calls Kernel.NextContext with the resulting
// stack pointer, and unstacks the incoming frame, including decoding the
// entry point and first-argument register out of the synthetic initial
// frame on a task's very first dispatch.
//
// Machine methods other than the Port implementation must be called from
// the host goroutine, never from task code; Checkpoint is the one
// exception, callable only from task code.
type Machine struct {
	k      *Kernel
	halted bool

	// Exception state.
	primask     bool // interrupts masked
	pendSV      bool
	csPrio      uint8
	tickPrio    uint8
	tickHz      uint32
	tickPending bool
	excDepth    int

	// Device interrupt controller.
	irqEnabled [NumIRQ]bool
	irqPending [NumIRQ]bool

	// Execution contexts. cur is nil until the first context switch
	// (startup code owns the CPU). running is true while a task context
	// holds the baton on behalf of the host.
	cur       *machContext
	running   bool
	ctxs      map[*Task]*machContext
	waitpoint chan struct{}

	// Interned task entry points; the slot index encodes the synthetic
	// flash address placed in initial frames.
	code []TaskFunc
}

// machContext is the execution state of one task on the simulated CPU: the
// goroutine standing in for its thread of control plus the callee-saved
// registers the context-switch exception stacks by hand.
type machContext struct {
	task      *Task
	resume    chan struct{}
	started   bool
	codeAddr  uint32
	r0        uint32
	regs      [8]uint32 // R4-R11
	excReturn uint32
}

// NewMachine creates a machine with a fresh kernel wired to it.
func NewMachine() *Machine {
	m := &Machine{
		ctxs:      make(map[*Task]*machContext),
		waitpoint: make(chan struct{}),
	}
	m.k = New(m)
	return m
}

// Kernel returns the kernel running on this machine.
func (m *Machine) Kernel() *Kernel { return m.k }

// Halted reports whether the machine hit a hard fault (a corrupt exception
// frame or an unmapped code address) and stopped.
func (m *Machine) Halted() bool { return m.halted }

// Tick delivers one period of the tick timer and then runs the machine
// until the current context reaches the next instruction boundary. While
// interrupts are masked the tick is latched and delivered when the mask
// drops.
func (m *Machine) Tick() {
	if m.halted {
		return
	}
	if m.primask {
		m.tickPending = true
	} else {
		m.excDepth++
		m.k.TickHandler()
		m.excDepth--
		m.exceptionReturn()
	}
	m.runCurrent()
}

// Run delivers n ticks.
func (m *Machine) Run(n int) {
	for i := 0; i < n && !m.halted; i++ {
		m.Tick()
	}
}

// RaiseIRQ asserts one device interrupt line. An enabled line is dispatched
// through the kernel trampoline immediately (or, while masked, latched);
// a disabled line stays pending until cleared or enabled.
func (m *Machine) RaiseIRQ(irq int) {
	if m.halted || irq < 0 || irq >= NumIRQ {
		return
	}
	m.irqPending[irq] = true
	if !m.primask {
		m.dispatchIRQs()
		m.exceptionReturn()
	}
	m.runCurrent()
}

// Checkpoint marks an instruction boundary in a busy task: pending
// exceptions are taken here and the task may be preempted. Call it from
// task code only.
func (m *Machine) Checkpoint() {
	m.handoff()
}

// --- Port implementation -------------------------------------------------

// TriggerContextSwitch pends the context-switch exception. In thread mode
// with interrupts enabled the switch is taken immediately; from exception
// context it tail-chains at exception return.
func (m *Machine) TriggerContextSwitch() {
	m.pendSV = true
	if m.excDepth == 0 && !m.primask {
		m.pendSV = false
		m.switchNow()
	}
}

// SetContextSwitchPriority records the context-switch exception priority.
func (m *Machine) SetContextSwitchPriority(prio uint8) { m.csPrio = prio }

// SetTickPriority records the tick exception priority.
func (m *Machine) SetTickPriority(prio uint8) { m.tickPrio = prio }

// ConfigureTick records the tick rate. Time only advances when the host
// calls Tick, so the rate is reporting-only in simulation.
func (m *Machine) ConfigureTick(hz uint32) { m.tickHz = hz }

// DisableInterrupts masks interrupts.
func (m *Machine) DisableInterrupts() { m.primask = true }

// EnableInterrupts unmasks interrupts and takes everything that pended
// while they were masked: device interrupts first, then the tick, then a
// pending context switch.
func (m *Machine) EnableInterrupts() {
	m.primask = false
	m.drain()
}

// WaitForInterrupt parks the calling context until the machine resumes it.
func (m *Machine) WaitForInterrupt() { m.handoff() }

// ClearPendingIRQ clears the pending latch of one interrupt line.
func (m *Machine) ClearPendingIRQ(irq int) {
	if irq >= 0 && irq < NumIRQ {
		m.irqPending[irq] = false
	}
}

// EnableIRQ enables one interrupt line at the controller.
func (m *Machine) EnableIRQ(irq int) {
	if irq >= 0 && irq < NumIRQ {
		m.irqEnabled[irq] = true
	}
}

// DisableIRQ disables one interrupt line at the controller.
func (m *Machine) DisableIRQ(irq int) {
	if irq >= 0 && irq < NumIRQ {
		m.irqEnabled[irq] = false
	}
}

// FuncAddress interns a task entry point and returns its synthetic flash
// address.
func (m *Machine) FuncAddress(fn TaskFunc) uint32 {
	m.code = append(m.code, fn)
	return codeBase + codeStride*uint32(len(m.code))
}

// codeFor maps a frame program counter back to the interned entry point.
func (m *Machine) codeFor(pc uint32) TaskFunc {
	if pc < codeBase+codeStride || (pc-codeBase)%codeStride != 0 {
		return nil
	}
	idx := int((pc-codeBase)/codeStride) - 1
	if idx >= len(m.code) {
		return nil
	}
	return m.code[idx]
}

// --- Exception and context plumbing --------------------------------------

// dispatchIRQs drains every pending, enabled interrupt line in line order
// through the kernel trampoline. The pending latch clears at exception
// entry, as the controller does.
func (m *Machine) dispatchIRQs() {
	for {
		irq := -1
		for i := 0; i < NumIRQ; i++ {
			if m.irqPending[i] && m.irqEnabled[i] {
				irq = i
				break
			}
		}
		if irq < 0 {
			return
		}
		m.irqPending[irq] = false
		m.excDepth++
		m.k.DispatchISR(irq)
		m.excDepth--
	}
}

// drain takes exceptions that pended while interrupts were masked. Device
// interrupts outrank the tick; the context switch runs last, and only from
// thread mode; inside an exception it tail-chains at exception return.
func (m *Machine) drain() {
	if m.halted || m.primask {
		return
	}
	m.dispatchIRQs()
	if m.tickPending {
		m.tickPending = false
		m.excDepth++
		m.k.TickHandler()
		m.excDepth--
	}
	if m.excDepth == 0 && m.pendSV {
		m.pendSV = false
		m.switchNow()
	}
}

// exceptionReturn runs on the host after an exception handler completes:
// a pended context switch tail-chains here. The outgoing context stays
// parked at its boundary; only the machine's notion of the current context
// moves.
func (m *Machine) exceptionReturn() {
	if m.pendSV && !m.primask {
		m.pendSV = false
		m.contextSwitch()
	}
}

// switchNow takes the context-switch exception from thread mode, on the
// calling context's own goroutine. The caller parks until it is scheduled
// again; the incoming context runs in its place.
func (m *Machine) switchNow() {
	old := m.cur
	m.contextSwitch()
	if m.halted {
		if m.running {
			// Let the host observe the fault; this context is dead.
			m.waitpoint <- struct{}{}
			<-old.resume
		}
		return
	}
	next := m.cur
	if next == old {
		return
	}
	if m.running {
		// Caller is the outgoing task.
		next.resume <- struct{}{}
		<-old.resume
		return
	}
	// Caller is startup code: hand the CPU over and wait for the next
	// instruction boundary.
	m.running = true
	next.resume <- struct{}{}
	<-m.waitpoint
	m.running = false
}

// contextSwitch performs the exception handler's work: stack the outgoing
// context, ask the kernel for the next stack pointer, unstack the incoming
// context.
func (m *Machine) contextSwitch() {
	var sp uint32
	if m.cur != nil {
		sp = m.saveContext(m.cur)
	}
	// On the very first switch this stacks nothing: the startup stack is
	// never restored, so its frame is irrelevant.
	newSP := m.k.NextContext(sp)
	ctx := m.ctxFor(m.k.currentTask)
	if !m.restoreContext(ctx, newSP) {
		return
	}
	m.cur = ctx
}

// ctxFor returns the execution context of a task, creating it on first use.
func (m *Machine) ctxFor(t *Task) *machContext {
	ctx, ok := m.ctxs[t]
	if !ok {
		ctx = &machContext{task: t, resume: make(chan struct{})}
		m.ctxs[t] = ctx
	}
	return ctx
}

// saveContext stacks the outgoing context's exception frame onto its task
// stack: the eight hardware-stacked words, then the exception-return value
// and R4-R11. It returns the resulting stack pointer.
func (m *Machine) saveContext(ctx *machContext) uint32 {
	t := ctx.task
	w := t.stack[:]

	w[stackWords-offXPSR] = initialXPSR
	w[stackWords-offPC] = ctx.codeAddr
	w[stackWords-offLR] = returnHookAddr
	w[stackWords-offR12] = 0
	w[stackWords-offR3] = 0
	w[stackWords-offR2] = 0
	w[stackWords-offR1] = 0
	w[stackWords-offR0] = ctx.r0

	w[stackWords-offLRPrev] = ctx.excReturn
	for i := 0; i < 8; i++ {
		w[stackWords-(offR4+i)] = ctx.regs[i]
	}

	return t.stackBase + uint32(stackWords-fullFrameWords)*4
}

// restoreContext unstacks the frame the incoming stack pointer addresses,
// validating the exception-return value and the Thumb bit the way the core
// would fault on them. On a task's first dispatch the frame is the
// synthetic one built at creation: the program counter selects the entry
// point and R0 carries the task parameter.
func (m *Machine) restoreContext(ctx *machContext, sp uint32) bool {
	t := ctx.task
	if sp != t.stackBase+uint32(stackWords-fullFrameWords)*4 {
		m.hardFault("stack pointer %#08x outside the frame of task %d", sp, t.id)
		return false
	}
	w := t.stack[:]

	ctx.excReturn = w[stackWords-offLRPrev]
	if ctx.excReturn != excReturnThreadMSP {
		m.hardFault("bad exception return %#08x on task %d", ctx.excReturn, t.id)
		return false
	}
	for i := 0; i < 8; i++ {
		ctx.regs[i] = w[stackWords-(offR4+i)]
	}

	if w[stackWords-offXPSR]&initialXPSR == 0 {
		m.hardFault("thumb bit clear on task %d", t.id)
		return false
	}
	ctx.r0 = w[stackWords-offR0]
	ctx.codeAddr = w[stackWords-offPC]

	if !ctx.started {
		fn := m.codeFor(ctx.codeAddr)
		if fn == nil {
			m.hardFault("no code at %#08x for task %d", ctx.codeAddr, t.id)
			return false
		}
		ctx.started = true
		go func(param uint32) {
			<-ctx.resume
			fn(param)
			m.k.runReturnHook()
		}(ctx.r0)
	}
	return true
}

// runCurrent hands the CPU to the current context and waits for it to reach
// the next instruction boundary.
func (m *Machine) runCurrent() {
	if m.halted || m.cur == nil {
		return
	}
	m.running = true
	m.cur.resume <- struct{}{}
	<-m.waitpoint
	m.running = false
}

// handoff parks the calling context at an instruction boundary, returning
// the baton to the host. The context resumes when it is next scheduled.
func (m *Machine) handoff() {
	ctx := m.cur
	m.waitpoint <- struct{}{}
	<-ctx.resume
}

// hardFault stops the machine.
func (m *Machine) hardFault(format string, args ...any) {
	log.Printf("[rtos] hard fault: "+format, args...)
	m.halted = true
}
