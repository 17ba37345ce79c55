// Package buffer holds events between ingestion and the batch writer.
//
// One Buffer exists per event kind. The ingest side appends, the flush side
// drains everything at once and may requeue entries whose write failed.
package buffer
