package events

// SubscribeToChannel bridges callback subscriptions on topic to a channel.
// This is needed for SSE integration where Huma expects a channel-based select loop.
func SubscribeToChannel(bus *Bus, topic Topic, ch chan<- any) func() {
	return bus.Subscribe(topic, func(e Envelope) {
		select {
		case ch <- e:
		default:
			// Drop event if channel is full (non-blocking)
		}
	})
}
