package rtos

import (
	"encoding/binary"
	"errors"
)

// kernelSerializeVersion is incremented whenever the binary layout changes.
const kernelSerializeVersion = 1

// Fixed sizes of the serialized layout: a header followed by one block per
// task plus one for the idle task.
const (
	serializeHeaderSize = 28
	serializeTaskSize   = 3 + 12 + StackSize
)

// Sentinel task indices used where the controller holds a task reference.
const (
	serializeTaskNone = 0xFE
	serializeTaskIdle = 0xFF
)

// SerializeSize returns the number of bytes needed for Serialize. It
// depends on the number of registered tasks.
func (k *Kernel) SerializeSize() int {
	return serializeHeaderSize + (int(k.numTasks)+1)*serializeTaskSize
}

// Serialize writes the full kernel state into buf, which must be at least
// SerializeSize() bytes. Task entry points, hooks, the ISR registry and the
// port are not included; Deserialize restores onto a kernel configured with
// the same task set.
func (k *Kernel) Serialize(buf []byte) error {
	if len(buf) < k.SerializeSize() {
		return errors.New("rtos: serialize buffer too small")
	}

	be := binary.BigEndian
	buf[0] = kernelSerializeVersion
	off := 1

	be.PutUint32(buf[off:], k.systemTime)
	off += 4
	buf[off] = byte(k.state)
	off++
	buf[off] = byte(k.lastError)
	off++
	be.PutUint32(buf[off:], uint32(k.criticalDepth))
	off += 4
	buf[off] = boolByte(k.scheduleFromISR)
	off++
	buf[off] = k.nextID
	off++
	buf[off] = k.numTasks
	off++
	for p := 0; p < numPriorities; p++ {
		buf[off] = k.tasksPerPriority[p]
		off++
	}
	for p := 0; p < numPriorities; p++ {
		buf[off] = k.schedCursor[p]
		off++
	}
	buf[off] = k.taskIndex(k.currentTask)
	off++
	buf[off] = k.taskIndex(k.nextTask)
	off++
	be.PutUint32(buf[off:], k.tickHz)
	off += 4

	for i := 0; i < int(k.numTasks); i++ {
		off = serializeTask(buf, off, k.taskList[i])
	}
	serializeTask(buf, off, &k.idle)
	return nil
}

func serializeTask(buf []byte, off int, t *Task) int {
	be := binary.BigEndian

	buf[off] = t.id
	off++
	buf[off] = byte(t.state)
	off++
	buf[off] = t.priority
	off++
	be.PutUint32(buf[off:], t.remainingBlockedTicks)
	off += 4
	be.PutUint32(buf[off:], t.stackPointer)
	off += 4
	be.PutUint32(buf[off:], t.stackBase)
	off += 4
	for i := 0; i < stackWords; i++ {
		be.PutUint32(buf[off:], t.stack[i])
		off += 4
	}
	return off
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// taskIndex encodes a controller task reference as a table index, with
// sentinels for nil and the idle task.
func (k *Kernel) taskIndex(t *Task) uint8 {
	switch t {
	case nil:
		return serializeTaskNone
	case &k.idle:
		return serializeTaskIdle
	}
	for i := 0; i < int(k.numTasks); i++ {
		if k.taskList[i] == t {
			return uint8(i)
		}
	}
	return serializeTaskNone
}

// taskAt decodes a serialized task reference.
func (k *Kernel) taskAt(idx uint8) *Task {
	switch {
	case idx == serializeTaskNone:
		return nil
	case idx == serializeTaskIdle:
		return &k.idle
	case int(idx) < int(k.numTasks):
		return k.taskList[idx]
	default:
		return nil
	}
}

// Deserialize restores kernel state from buf. The kernel must already hold
// the same task table Serialize saw (entry points are not serializable).
// It returns an error on a short buffer, a version mismatch, or a task
// count mismatch.
func (k *Kernel) Deserialize(buf []byte) error {
	if len(buf) < serializeHeaderSize {
		return errors.New("rtos: deserialize buffer too small")
	}
	if buf[0] != kernelSerializeVersion {
		return errors.New("rtos: unsupported serialize version")
	}

	be := binary.BigEndian
	off := 1

	systemTime := be.Uint32(buf[off:])
	off += 4
	state := State(buf[off])
	off++
	lastError := Error(buf[off])
	off++
	criticalDepth := int32(be.Uint32(buf[off:]))
	off += 4
	scheduleFromISR := buf[off] != 0
	off++
	nextID := buf[off]
	off++
	numTasks := buf[off]
	off++

	if numTasks != k.numTasks {
		return errors.New("rtos: deserialize task table mismatch")
	}
	if len(buf) < k.SerializeSize() {
		return errors.New("rtos: deserialize buffer too small")
	}

	k.systemTime = systemTime
	k.state = state
	k.lastError = lastError
	k.criticalDepth = criticalDepth
	k.scheduleFromISR = scheduleFromISR
	k.nextID = nextID

	for p := 0; p < numPriorities; p++ {
		k.tasksPerPriority[p] = buf[off]
		off++
	}
	for p := 0; p < numPriorities; p++ {
		k.schedCursor[p] = buf[off]
		off++
	}
	currentIdx := buf[off]
	off++
	nextIdx := buf[off]
	off++
	k.tickHz = be.Uint32(buf[off:])
	off += 4

	k.currentTask = k.taskAt(currentIdx)
	k.nextTask = k.taskAt(nextIdx)

	for i := 0; i < int(k.numTasks); i++ {
		off = deserializeTask(buf, off, k.taskList[i])
	}
	deserializeTask(buf, off, &k.idle)
	return nil
}

func deserializeTask(buf []byte, off int, t *Task) int {
	be := binary.BigEndian

	t.id = buf[off]
	off++
	t.state = TaskState(buf[off])
	off++
	t.priority = buf[off]
	off++
	t.remainingBlockedTicks = be.Uint32(buf[off:])
	off += 4
	t.stackPointer = be.Uint32(buf[off:])
	off += 4
	t.stackBase = be.Uint32(buf[off:])
	off += 4
	for i := 0; i < stackWords; i++ {
		t.stack[i] = be.Uint32(buf[off:])
		off += 4
	}
	return off
}
