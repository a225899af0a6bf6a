package usecase

import (
	"sync"
	"sync/atomic"
	"time"

	"voicelink/internal/ports"
)

type activeConversation struct {
	cancel  func()
	audio   ports.AudioSession
	session ports.Session

	pumpDone     chan struct{}
	dispatchDone chan struct{}

	// handoffTimer is armed and cleared only on the dispatch goroutine.
	handoffTimer *time.Timer

	closed     atomic.Bool
	finishOnce sync.Once
}

func (a *activeConversation) markClosed() {
	a.closed.Store(true)
}

func (a *activeConversation) wasClosed() bool {
	return a.closed.Load()
}
