package rtos

// lowestExceptionPriority is the largest (least urgent) priority value the
// interrupt controller accepts.
const lowestExceptionPriority = 0xFF

// Kernel is the process-wide controller: task table, scheduling state,
// system time and the ISR registry. Create one with New, register tasks
// with InitTask, then call Init and start delivering ticks.
//
// The hook fields may be replaced before Init to observe or override
// kernel behavior; all default to the built-in no-ops.
type Kernel struct {
	port Port

	taskList         [MaxTasks]*Task
	numTasks         uint8
	tasksPerPriority [numPriorities]uint8

	lastError       Error
	state           State
	currentTask     *Task
	nextTask        *Task
	systemTime      uint32
	criticalDepth   int32
	scheduleFromISR bool

	idle   Task
	nextID uint8
	tickHz uint32

	// Round-robin cursor per priority. Scheduler state only; survives
	// across scheduling decisions but is never exposed.
	schedCursor [numPriorities]uint8

	isrTable [NumIRQ]ISRFunc

	// IdleTask replaces the body of the built-in idle task. If it
	// returns, the idle task falls back to the wait-for-interrupt loop.
	IdleTask func(param uint32)

	// TickHook runs at the end of every tick, after scheduling.
	TickHook func()

	// ReturnHook runs if a task entry function returns. Tasks must never
	// return; after the hook the kernel parks the offending context.
	ReturnHook func()

	// ErrorHook runs whenever the kernel records an error, with the code
	// and the name of the recording operation.
	ErrorHook func(err Error, caller string)
}

// New creates a kernel wired to the given port. The kernel starts in the
// reset state with an empty task table and a 1 kHz tick rate.
func New(port Port) *Kernel {
	return &Kernel{
		port:   port,
		state:  StateReset,
		tickHz: DefaultTickRate,
	}
}

// SetTickRate changes the tick frequency programmed at Init. Call before
// Init; the tick is the unit of every delay and timeout.
func (k *Kernel) SetTickRate(hz uint32) {
	k.tickHz = hz
}

// Init starts the kernel: it lowers the context-switch exception below
// every other interrupt (placing the tick just above it), constructs the
// idle task, resets the controller and sorts the task table by ascending
// priority so each priority forms a contiguous run.
//
// Init returns to the caller; the first context switch happens when the
// first tick fires. A bare-metal main is expected to wait-for-interrupt
// after Init; a simulated one calls Machine.Tick.
func (k *Kernel) Init() {
	k.port.SetContextSwitchPriority(lowestExceptionPriority)
	k.port.SetTickPriority(lowestExceptionPriority - 1)

	k.initIdleTask()

	k.state = StateReset
	k.currentTask = nil
	k.nextTask = nil
	k.criticalDepth = 0
	k.scheduleFromISR = false
	k.systemTime = 0

	k.sortByPriority()

	k.port.ConfigureTick(k.tickHz)
}

// sortByPriority stable-sorts the task table by ascending priority.
// Bubble sort: the table holds at most MaxTasks entries, and stability
// keeps creation order within a priority.
func (k *Kernel) sortByPriority() {
	n := int(k.numTasks)
	for i := 0; i < n-1; i++ {
		for j := 0; j < n-i-1; j++ {
			if k.taskList[j].priority > k.taskList[j+1].priority {
				k.taskList[j], k.taskList[j+1] = k.taskList[j+1], k.taskList[j]
			}
		}
	}
}

// setError records the most recent error and reports it to the error hook.
func (k *Kernel) setError(err Error, caller string) {
	k.lastError = err
	if k.ErrorHook != nil {
		k.ErrorHook(err, caller)
	}
}

// LastError returns the most recent error recorded by the kernel.
func (k *Kernel) LastError() Error { return k.lastError }

// CurrentTask returns the task currently owning the CPU, or nil before the
// first scheduling decision. The idle task reports IdleTaskID.
func (k *Kernel) CurrentTask() *Task { return k.currentTask }

// Now returns the number of ticks elapsed since Init.
func (k *Kernel) Now() uint32 { return k.systemTime }

// GlobalState returns the kernel mode: reset before the first context
// switch, isr while a user interrupt handler runs, normal otherwise.
func (k *Kernel) GlobalState() State { return k.state }

// runReturnHook handles a task entry function that returned. It never
// comes back: after the user hook (if any) the context parks forever.
func (k *Kernel) runReturnHook() {
	if k.ReturnHook != nil {
		k.ReturnHook()
	}
	for {
		k.port.WaitForInterrupt()
	}
}
