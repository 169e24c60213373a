package app

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/dkeye/relay/internal/core"
	"github.com/stretchr/testify/require"
)

var errSendFailed = errors.New("send failed")

type fakeConn struct {
	frames []core.Frame
	fail   bool
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	if c.fail {
		return errSendFailed
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() { c.closed = true }

func (c *fakeConn) events(t *testing.T) []core.Envelope {
	t.Helper()
	out := make([]core.Envelope, 0, len(c.frames))
	for _, f := range c.frames {
		var env core.Envelope
		require.NoError(t, json.Unmarshal(f, &env))
		out = append(out, env)
	}
	return out
}
