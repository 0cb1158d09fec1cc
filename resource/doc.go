// Package resource provides the native reference table shared by the bridge
// and the engine.
//
// Objects living in the embedded runtime are identified on the runtime side by
// a 32-bit representation (typically a guest pointer or slot number). The host
// never hands those representations out directly; it registers them in a Table
// and passes around generation-checked handles instead:
//
//	table := resource.NewTable()
//
//	h, err := table.Insert(rep, nil)
//	rep, ok := table.Rep(h)
//
//	// Remove succeeds exactly once per handle
//	rep, ok = table.Remove(h)
//
// A removed slot is reused by later inserts, but with a bumped generation, so
// stale handles keep failing lookups instead of aliasing a newer object.
//
// # Observers
//
// Register observers to track reference lifecycle events:
//
//	table.Subscribe(obs) // obs.OnResourceEvent(resource.Event{...})
//
// # Memory Management
//
// Entries are not garbage collected. The bridge's reference daemon is the only
// component that calls Remove; Close forgets whatever is left when the runtime
// is torn down.
package resource
