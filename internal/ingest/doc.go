// Package ingest turns bus messages into buffered events.
//
// An Ingestor owns one subscription and one buffer. It decodes each payload
// with the kind's Decoder; malformed payloads are counted, logged (rate
// limited) and dropped. It returns on cancellation without draining the
// buffer; flushing is the writer's job.
package ingest
