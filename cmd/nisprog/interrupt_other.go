//go:build !unix

package main

// noInterrupter never fires. Ctrl-C still cancels through the context.
type noInterrupter struct{}

func newInterrupter() interrupter {
	return noInterrupter{}
}

func (noInterrupter) Pending() bool { return false }

func (noInterrupter) Reset() {}
