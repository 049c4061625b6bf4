package rtos

import (
	"bytes"
	"testing"
)

func TestInitQueueRejectsOversizedElements(t *testing.T) {
	k, _ := newTestKernel()

	var q Queue
	if k.InitQueue(&q, MaxQueueBytes+1) {
		t.Error("InitQueue accepted an oversized element")
	}
	if k.InitQueue(&q, 0) {
		t.Error("InitQueue accepted a zero element size")
	}
	if !k.InitQueue(&q, MaxQueueBytes) {
		t.Error("InitQueue rejected a full-storage element")
	}
}

func TestQueueSendReceiveRoundTrip(t *testing.T) {
	k, _, _ := startedKernel(t, 0)

	var q Queue
	if !k.InitQueue(&q, 4) {
		t.Fatal("InitQueue failed")
	}

	in := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if !q.Send(in) {
		t.Fatal("Send failed")
	}

	out := make([]byte, 4)
	if !q.Receive(out) {
		t.Fatal("Receive failed")
	}
	if !bytes.Equal(out, in) {
		t.Errorf("round trip = %x, want %x", out, in)
	}
	if q.count != 0 {
		t.Errorf("count = %d, want 0", q.count)
	}
}

func TestQueueWrapsAround(t *testing.T) {
	k, _, _ := startedKernel(t, 0)

	var q Queue
	if !k.InitQueue(&q, 16) { // capacity 4
		t.Fatal("InitQueue failed")
	}

	elem := func(b byte) []byte {
		e := make([]byte, 16)
		for i := range e {
			e[i] = b
		}
		return e
	}

	// Fill, drain two, refill: front and back wrap at element granularity.
	for i := byte(0); i < 4; i++ {
		if !q.Send(elem(i)) {
			t.Fatalf("Send(%d) failed", i)
		}
	}
	out := make([]byte, 16)
	for i := byte(0); i < 2; i++ {
		if !q.Receive(out) {
			t.Fatalf("Receive(%d) failed", i)
		}
		if !bytes.Equal(out, elem(i)) {
			t.Errorf("element %d = %x", i, out[0])
		}
	}
	for i := byte(4); i < 6; i++ {
		if !q.Send(elem(i)) {
			t.Fatalf("Send(%d) failed", i)
		}
	}
	for i := byte(2); i < 6; i++ {
		if !q.Receive(out) {
			t.Fatalf("Receive(%d) failed", i)
		}
		if !bytes.Equal(out, elem(i)) {
			t.Errorf("element %d = %x, want %x", i, out[0], i)
		}
	}
}

func TestQueueISRSendToFullFails(t *testing.T) {
	k, _, _ := startedKernel(t, 0)

	var q Queue
	if !k.InitQueue(&q, MaxQueueBytes) { // capacity 1
		t.Fatal("InitQueue failed")
	}
	if !q.Send(make([]byte, MaxQueueBytes)) {
		t.Fatal("Send failed")
	}

	k.state = StateISR
	if q.Send(make([]byte, MaxQueueBytes)) {
		t.Error("ISR send to a full queue succeeded")
	}
}

func TestQueueISRReceiveFromEmptyFails(t *testing.T) {
	k, _, _ := startedKernel(t, 0)

	var q Queue
	if !k.InitQueue(&q, 4) {
		t.Fatal("InitQueue failed")
	}

	k.state = StateISR
	if q.Receive(make([]byte, 4)) {
		t.Error("ISR receive from an empty queue succeeded")
	}
}

func TestQueueSendWakesBlockedReceiver(t *testing.T) {
	k, tasks, _ := startedKernel(t, 0, 1)
	receiver := tasks[1]

	var q Queue
	if !k.InitQueue(&q, 4) {
		t.Fatal("InitQueue failed")
	}

	receiver.state = TaskBlocked
	q.blockedReceiver = receiver

	if !q.Send([]byte{1, 2, 3, 4}) {
		t.Fatal("Send failed")
	}
	if receiver.state != TaskReady {
		t.Errorf("receiver state = %v, want ready", receiver.state)
	}
	if q.blockedReceiver != nil {
		t.Error("blocked receiver still recorded")
	}
}

func TestQueueISRSendArmsReschedule(t *testing.T) {
	k, tasks, _ := startedKernel(t, 0, 1)
	receiver := tasks[1]

	var q Queue
	if !k.InitQueue(&q, 4) {
		t.Fatal("InitQueue failed")
	}

	receiver.state = TaskBlocked
	q.blockedReceiver = receiver

	k.state = StateISR
	if !q.Send([]byte{9, 9, 9, 9}) {
		t.Fatal("ISR send failed")
	}
	if !k.scheduleFromISR {
		t.Error("ISR send did not arm the reschedule")
	}
}

func TestQueueReceiveWakesBlockedSender(t *testing.T) {
	k, tasks, _ := startedKernel(t, 0, 1)
	sender := tasks[1]

	var q Queue
	if !k.InitQueue(&q, MaxQueueBytes) { // capacity 1
		t.Fatal("InitQueue failed")
	}
	if !q.Send(make([]byte, MaxQueueBytes)) {
		t.Fatal("Send failed")
	}

	sender.state = TaskBlocked
	q.blockedSender = sender

	if !q.Receive(make([]byte, MaxQueueBytes)) {
		t.Fatal("Receive failed")
	}
	if sender.state != TaskReady {
		t.Errorf("sender state = %v, want ready", sender.state)
	}
	if q.blockedSender != nil {
		t.Error("blocked sender still recorded")
	}
}
