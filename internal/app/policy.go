package app

import "github.com/dkeye/relay/internal/core"

type SendFailureAction int

const (
	NoAction SendFailureAction = iota
	Disconnect
)

// Policy decides what happens to a connection whose send failed.
type Policy interface {
	OnSendFailure(conn core.ConnectionID, err error) SendFailureAction
}

// SimplePolicy treats every failed send as a lost transport.
type SimplePolicy struct{}

func (SimplePolicy) OnSendFailure(core.ConnectionID, error) SendFailureAction {
	return Disconnect
}
