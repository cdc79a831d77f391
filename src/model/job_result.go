package model

// JobResult is a miner share submission. ID is the request id as the miner sent
// it and is echoed back verbatim in the reply.
type JobResult struct {
	ID     any
	JobID  string
	Nonce  string
	Result string
	Diff   uint64
}
