// Package notify distributes operation output and catalog events.
//
// Fanout drains a single backend progress stream, tagging every chunk
// with the operation's progress ID before handing it to the output sink,
// so interleaved output of concurrent operations stays attributable.
//
// Broadcaster owns the listener roster. It is an explicit object passed
// to whoever needs it; there is no package-level state.
//
//	events := notify.NewBroadcaster(logger, metrics)
//	sub := events.Subscribe(32)
//	defer sub.Close()
//
//	fan := notify.NewFanout(progressID, events)
//	err := fan.Run(stream)
package notify
