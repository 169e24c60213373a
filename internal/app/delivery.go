package app

import "github.com/dkeye/relay/internal/core"

// Deliverer hands a frame to one connection's transport.
type Deliverer interface {
	Deliver(id core.ConnectionID, f core.Frame) error
}

// Failure is a connection whose send failed during a fan-out.
type Failure struct {
	Conn core.ConnectionID
	Err  error
}

// PublishResult reports delivery stats/backpressure to the relay loop.
type PublishResult struct {
	SentTo int       `json:"sentTo"`
	Failed []Failure `json:"-"`
}

func deliverAll(d Deliverer, ids []core.ConnectionID, f core.Frame) PublishResult {
	res := PublishResult{}
	for _, id := range ids {
		if err := d.Deliver(id, f); err != nil {
			res.Failed = append(res.Failed, Failure{Conn: id, Err: err})
			continue
		}
		res.SentTo++
	}
	return res
}
