package rtos

import "testing"

// fakePort is a recording Port for unit tests that exercise kernel logic
// without running the simulated machine. Every call is counted; nothing
// ever switches or blocks.
type fakePort struct {
	pendCount    int
	csPrio       uint8
	tickPrio     uint8
	tickHz       uint32
	disableCount int
	enableCount  int
	wfiCount     int

	cleared  [NumIRQ]int
	enabled  [NumIRQ]bool
	disabled [NumIRQ]int

	nextAddr uint32
}

func (p *fakePort) TriggerContextSwitch()               { p.pendCount++ }
func (p *fakePort) SetContextSwitchPriority(prio uint8) { p.csPrio = prio }
func (p *fakePort) SetTickPriority(prio uint8)          { p.tickPrio = prio }
func (p *fakePort) ConfigureTick(hz uint32)             { p.tickHz = hz }
func (p *fakePort) DisableInterrupts()                  { p.disableCount++ }
func (p *fakePort) EnableInterrupts()                   { p.enableCount++ }
func (p *fakePort) WaitForInterrupt()                   { p.wfiCount++ }
func (p *fakePort) ClearPendingIRQ(irq int)             { p.cleared[irq]++ }
func (p *fakePort) EnableIRQ(irq int)                   { p.enabled[irq] = true }
func (p *fakePort) DisableIRQ(irq int)                  { p.disabled[irq]++; p.enabled[irq] = false }

func (p *fakePort) FuncAddress(fn TaskFunc) uint32 {
	p.nextAddr += codeStride
	return codeBase + p.nextAddr
}

// newTestKernel returns a kernel on a fresh recording port.
func newTestKernel() (*Kernel, *fakePort) {
	p := &fakePort{}
	return New(p), p
}

// startedKernel builds a kernel with the given task priorities, runs Init,
// and forces it into the normal state with the first table entry running:
// the state the scheduler and primitives see after the first context
// switch.
func startedKernel(t *testing.T, priorities ...uint8) (*Kernel, []*Task, *fakePort) {
	t.Helper()

	k, p := newTestKernel()
	tasks := make([]*Task, len(priorities))
	for i, prio := range priorities {
		tasks[i] = &Task{}
		if err := k.InitTask(func(uint32) {}, tasks[i], 0, prio); err != ErrNone {
			t.Fatalf("InitTask(%d) = %v", i, err)
		}
	}
	k.Init()

	if len(priorities) > 0 {
		k.state = StateNormal
		k.currentTask = k.taskList[0]
		k.currentTask.state = TaskRunning
	}
	return k, tasks, p
}

// runningCount counts RUNNING tasks across the table and the idle task.
func runningCount(k *Kernel) int {
	n := 0
	for i := uint8(0); i < k.numTasks; i++ {
		if k.taskList[i].state == TaskRunning {
			n++
		}
	}
	if k.idle.state == TaskRunning {
		n++
	}
	return n
}

// checkOneRunning asserts the exactly-one-running invariant.
func checkOneRunning(t *testing.T, k *Kernel) {
	t.Helper()
	if n := runningCount(k); n != 1 {
		t.Errorf("running tasks = %d, want 1", n)
	}
}
