// Package broadcast provides synchronous in-memory fan-out to subscribers.
//
// Publish calls every current subscriber in subscription order on the
// publishing goroutine. Unsubscribe stops delivery immediately: once it
// returns, the subscriber's callback is not invoked again. A closed
// Broadcaster drops all subscribers and ignores further publishes.
//
//	b := broadcast.New[State](logger)
//	sub := b.Subscribe(func(s State) { render(s) })
//	defer sub.Unsubscribe()
package broadcast
