// Package writer flushes buffered events to storage.
//
// A BatchWriter drains its buffer wholesale, orders the batch newest-first by
// arrival sequence and keeps one event per identity key. The result is
// upserted through the kind's Store, then appended to the backup table under
// a fresh batch id whether or not the upsert succeeded. A failed upsert puts
// the batch back in the buffer with an incremented attempt count and opens a
// backoff window; events that run out of attempts go to a DeadLetter sink.
//
// A Scheduler decides when to flush, either on a size threshold
// (SizePolicy) or a fixed interval (TimerPolicy), and always runs one final
// flush after cancellation.
package writer
