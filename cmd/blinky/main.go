// Command blinky runs the classic kernel demo on the simulated machine:
// two LED tasks blinking at different rates, plus a third LED task that
// toggles on a button wired to a semaphore through the interrupt
// dispatcher. Toggle events print with their tick timestamps.
package main

import (
	"flag"
	"fmt"

	"github.com/matinone/go-rtos"
)

const buttonIRQ = 32

func main() {
	ticks := flag.Int("ticks", 50, "number of system ticks to simulate")
	press := flag.Int("press", 16, "press the button every N ticks (0 = never)")
	flag.Parse()

	m := rtos.NewMachine()
	k := m.Kernel()

	var button rtos.Semaphore
	k.InitSemaphore(&button)

	led := func(n int, state bool) {
		onOff := "off"
		if state {
			onOff = "on"
		}
		fmt.Printf("tick %4d  LED%d %s\n", k.Now(), n, onOff)
	}

	// Two free-running blinkers with different periods.
	var blink1, blink2, button3 rtos.Task
	k.InitTask(func(period uint32) {
		on := false
		for {
			on = !on
			led(1, on)
			k.Delay(period)
		}
	}, &blink1, 8, 1)
	k.InitTask(func(period uint32) {
		on := false
		for {
			on = !on
			led(2, on)
			k.Delay(period)
		}
	}, &blink2, 4, 1)

	// LED3 follows the button.
	k.InitTask(func(uint32) {
		on := false
		for {
			if button.Take(rtos.NoTimeout) {
				on = !on
				led(3, on)
			}
		}
	}, &button3, 0, 0)

	k.Init()
	k.RegisterISR(buttonIRQ, func() { button.Give() })

	for i := 1; i <= *ticks; i++ {
		m.Tick()
		if *press > 0 && i%*press == 0 {
			m.RaiseIRQ(buttonIRQ)
		}
	}

	if m.Halted() {
		fmt.Println("machine halted")
	}
}
