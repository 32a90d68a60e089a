package constants

// ReplyStatus is carried in the x-status header of every worker reply.
type ReplyStatus string

// Stable values (workers and gateways of different versions must agree).
const (
	ReplyStatusOK    ReplyStatus = "ok"    // body is a JSON array of records or the error text
	ReplyStatusError ReplyStatus = "error" // pipeline failed; body is the error text
)

// Broker defaults.
const (
	DefaultQueueName = "query_queue"
	HeaderStatus     = "x-status"
	HeaderDeadline   = "x-deadline"
)
