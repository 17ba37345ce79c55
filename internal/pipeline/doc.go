// Package pipeline wires one event kind end to end and runs all kinds together.
//
// A Pipeline couples an Ingestor and a flush Scheduler over a shared buffer.
// The scheduler only starts its final flush after the ingestor has stopped,
// so nothing appended before shutdown is left behind. The Coordinator runs
// every pipeline and returns once all of them have finished.
package pipeline
