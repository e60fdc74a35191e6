// Package shm stores a single value in a System V shared memory segment so that
// cooperating processes can exchange a small amount of state.
//
// A Slot owns nothing in the kernel beyond the segment addressed by its Key. Every
// Write deletes the current segment and creates a new one sized exactly to the
// encoded payload, so there are no partial updates. There is no locking: the last
// writer wins, and a Queue built on a Slot may lose appends made concurrently by
// several processes.
//
// Example usage:
//
//	key, _ := shm.DefaultKey()
//	slot := shm.Open(key)
//	defer slot.Close()
//	_ = slot.Write(ctx, map[string]int{"done": 3})
//	var got map[string]int
//	found, err := slot.Read(ctx, &got)
//	// ...
//
// Payloads are framed in a small envelope (see Encode); bytes that do not match it
// are reported as a *DecodeError.
package shm
