// Package ws streams pipeline phase events to WebSocket subscribers. The
// Hub receives events from the driver and fans them out per run; slow
// subscribers drop events instead of stalling the pipeline.
package ws
