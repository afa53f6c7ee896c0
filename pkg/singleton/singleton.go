// Package singleton provides process-wide accessors for the controllers
// most call sites just want one of, grounded in
// original_source/concurrent/ControllerFactory.java and
// original_source/common/util/ControllerFactory.java: each factory method
// there lazily creates and memoizes one shared controller behind a
// synchronized double-checked-lock monitor. sync.Once is the idiomatic Go
// substitute for that pattern.
//
// Call sites are identified by a string label (the nearest Go analogue of
// the originals' annotation-derived call-site key) wherever the
// underlying controller is generic over an attribute type.
package singleton

import (
	"sync"

	"github.com/masvboston/concurrent-aspects/pkg/machine"
	"github.com/masvboston/concurrent-aspects/pkg/runonce"
	"github.com/masvboston/concurrent-aspects/pkg/runtimer"
)

var (
	machineOnce sync.Once
	machineInst *machine.Controller

	runOnceOnce sync.Once
	runOnceInst *runonce.Controller[string]

	runTimerOnce sync.Once
	runTimerInst *runtimer.Controller[string]
)

// Machine returns the process-wide thread-machine controller, creating it
// on first use.
func Machine() *machine.Controller {
	machineOnce.Do(func() {
		machineInst = machine.New()
	})
	return machineInst
}

// RunOnce returns the process-wide run-once controller, creating it on
// first use.
func RunOnce() *runonce.Controller[string] {
	runOnceOnce.Do(func() {
		runOnceInst = runonce.New[string]()
	})
	return runOnceInst
}

// RunTimer returns the process-wide periodic-timer controller, creating
// it on first use.
func RunTimer() *runtimer.Controller[string] {
	runTimerOnce.Do(func() {
		runTimerInst = runtimer.New[string]()
	})
	return runTimerInst
}
