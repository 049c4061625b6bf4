package rtos

// Initial stack frame layout. Each task stack ends, at creation, with the
// frame the context-switch exception expects to pop: the eight words the
// hardware stacks on exception entry (xPSR, PC, LR, R12, R3-R0) on top of
// the nine words the handler stacks by hand (the EXC_RETURN value and
// R4-R11). The first switch onto the task pops the whole area and resumes
// it as if returning from an interrupt at its entry point.

// Frame slot offsets, in words back from the top of the stack.
const (
	offXPSR = 1 + iota
	offPC
	offLR
	offR12
	offR3
	offR2
	offR1
	offR0
	offLRPrev
	offR4
	offR5
	offR6
	offR7
	offR8
	offR9
	offR10
	offR11
)

const (
	// hwFrameWords is the part of the frame the hardware stacks on
	// exception entry; fullFrameWords adds the handler-stacked words.
	hwFrameWords   = 8
	fullFrameWords = 17

	// initialXPSR has the Thumb execution bit set and nothing else.
	initialXPSR = 1 << 24

	// excReturnThreadMSP is the EXC_RETURN value for "return to thread
	// mode, main stack, no FPU state".
	excReturnThreadMSP = 0xFFFFFFF9
)

// Simulated memory map. The kernel addresses task stacks inside a flat RAM
// window and task entry points inside a flat flash window, so stored stack
// pointers and frame PC values look and behave like real bus addresses.
const (
	codeBase   = 0x08000000
	codeStride = 0x40
	ramBase    = 0x20000000

	// returnHookAddr is the LR value in every initial frame: the address
	// a task "returns" to if its entry function ever falls off the end.
	returnHookAddr = codeBase
)

// initStackFrame writes the synthetic initial frame at the top of the
// task's stack and points its stored stack pointer at the bottom of the
// frame. Argument and scratch register slots stay zero.
func (k *Kernel) initStackFrame(t *Task, entry TaskFunc, param uint32) {
	t.stack[stackWords-offXPSR] = initialXPSR
	t.stack[stackWords-offPC] = k.port.FuncAddress(entry)
	t.stack[stackWords-offLR] = returnHookAddr

	t.stack[stackWords-offR0] = param

	t.stack[stackWords-offLRPrev] = excReturnThreadMSP
	t.stackPointer = t.stackBase + uint32(stackWords-fullFrameWords)*4
}
