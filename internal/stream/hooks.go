package stream

import "time"

// hookSourceLoss, hookConfigWaiters, and hookTickerLag are the
// nil-checked call sites every Hooks notification goes through, so the
// rest of the actor's code never has to guard a.options.Hooks itself.
func (a *Actor) hookSourceLoss(state string) {
	if a.options.Hooks != nil {
		a.options.Hooks.SourceLossTransition(state)
	}
}

func (a *Actor) hookConfigWaiters(n int) {
	if a.options.Hooks != nil {
		a.options.Hooks.ConfigWaiters(n)
	}
}

func (a *Actor) hookTickerLag(d time.Duration) {
	if a.options.Hooks != nil {
		a.options.Hooks.TickerLag(d)
	}
}
