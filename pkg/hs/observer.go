package hs

import "time"

// Observer receives client events, typically to feed metrics.
// Implementations must be safe for concurrent use.
type Observer interface {
	IndexOpened(class ModeClass)
	OperationDone(op string, class ModeClass, d time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) IndexOpened(ModeClass)                                {}
func (nopObserver) OperationDone(string, ModeClass, time.Duration, error) {}
