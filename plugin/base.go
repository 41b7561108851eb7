package plugin

import "sync"

// Base provides default implementations for every Plugin method except
// Initialize. Embed it in plugin implementations:
//
//	type myPlugin struct {
//		plugin.Base
//	}
//
// The zero value is ready to use.
type Base struct {
	initOnce sync.Once
	emitOnce sync.Once
	finished chan struct{}
}

// ExtensionsInitialized does nothing by default.
func (b *Base) ExtensionsInitialized() {}

// DelayedInitialize reports no work by default.
func (b *Base) DelayedInitialize() bool { return false }

// AboutToShutdown requests a synchronous shutdown by default.
func (b *Base) AboutToShutdown() ShutdownFlag { return SynchronousShutdown }

// AsynchronousShutdownFinished returns the completion channel closed by
// EmitAsynchronousShutdownFinished.
func (b *Base) AsynchronousShutdownFinished() <-chan struct{} {
	return b.finishedChan()
}

// EmitAsynchronousShutdownFinished signals that the plugin's asynchronous
// shutdown work is done. Idempotent; safe to call from any goroutine.
func (b *Base) EmitAsynchronousShutdownFinished() {
	b.emitOnce.Do(func() { close(b.finishedChan()) })
}

func (b *Base) finishedChan() chan struct{} {
	b.initOnce.Do(func() { b.finished = make(chan struct{}) })
	return b.finished
}
