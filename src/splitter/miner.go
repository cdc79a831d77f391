package splitter

import "github.com/onemorebsmith/stratum-proxy/src/model"

// Miner is the downstream connection as seen by the splitter. Replies go
// straight back to the connection the miner is attached to.
type Miner interface {
	ID() int64
	Login() string
	MapperID() int
	SetMapperID(id int)
	FixedByte() int
	SetFixedByte(b int)
	SetJob(job *model.Job)
	Reject(id any, reason string)
	Success(id any, status string)
}
