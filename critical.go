package rtos

// EnterCritical masks interrupts and bumps the nesting depth. Critical
// sections nest; only the outermost ExitCritical unmasks interrupts.
// Matching the calls is the caller's responsibility.
func (k *Kernel) EnterCritical() {
	k.port.DisableInterrupts()
	k.criticalDepth++
}

// ExitCritical drops one nesting level and unmasks interrupts when the
// outermost section ends. Exceptions that pended while masked are taken
// here.
func (k *Kernel) ExitCritical() {
	k.criticalDepth--
	if k.criticalDepth <= 0 {
		k.port.EnableInterrupts()
	}
}
