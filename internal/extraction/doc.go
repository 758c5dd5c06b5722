// Package extraction runs the node's extraction cycles. Each cycle refreshes
// the backend configuration, sends a heartbeat, and then walks the assigned
// hospitals in order, running the patient list stage followed by the batch
// summary and batch insurance stages. Stage failures are contained per
// hospital; nothing a stage does can stop the loop.
package extraction
