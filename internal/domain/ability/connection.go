package ability

import (
	"fmt"
	"sync/atomic"

	"github.com/openharmony/aafwk-standard-sub013/internal/shared/errcode"
)

var connectionIDSeq atomic.Int64

// Connection is one caller to service binding. It is referenced from the
// connect manager's per-callback map and from the target record's
// connection list, and lives until both drop it.
type Connection struct {
	id          int64
	state       ConnectionState
	target      *Record
	callback    ConnectCallback
	callerToken Token
	abnormal    bool
}

// NewConnection creates a binding in the INIT state
func NewConnection(callerToken Token, target *Record, cb ConnectCallback) *Connection {
	return &Connection{
		id:          connectionIDSeq.Add(1),
		state:       ConnectionInit,
		target:      target,
		callback:    cb,
		callerToken: callerToken,
	}
}

// ID returns the connection record id
func (c *Connection) ID() int64 { return c.id }

// State returns the binding state
func (c *Connection) State() ConnectionState { return c.state }

// SetState forces the binding state
func (c *Connection) SetState(s ConnectionState) { c.state = s }

// Target returns the service record
func (c *Connection) Target() *Record { return c.target }

// Callback returns the client callback
func (c *Connection) Callback() ConnectCallback { return c.callback }

// CallerToken returns the token of the connecting ability, NilToken for
// non-ability callers
func (c *Connection) CallerToken() Token { return c.callerToken }

// IsAbnormal reports whether the binding ended because the service died
func (c *Connection) IsAbnormal() bool { return c.abnormal }

// ConnectAbility starts the handshake with the service
func (c *Connection) ConnectAbility() error {
	if c.state != ConnectionInit {
		return errcode.InvalidConnectionState
	}
	c.state = ConnectionConnecting
	return c.target.ConnectAbility()
}

// CompleteConnect reports the handshake result to the client
func (c *Connection) CompleteConnect(result errcode.Code) {
	if result == errcode.OK {
		c.state = ConnectionConnected
	} else {
		c.state = ConnectionDisconnected
	}
	if c.callback != nil {
		c.callback.OnAbilityConnectDone(c.target.Element(), c.target.RemoteObject(), result)
	}
}

// DisconnectAbility starts tearing the binding down. The last binding of a
// service moves to DISCONNECTING and asks the service to disconnect; any
// other binding is DISCONNECTED at once and the caller completes it.
func (c *Connection) DisconnectAbility() error {
	if c.state != ConnectionConnected {
		return errcode.InvalidConnectionState
	}
	if c.target.ConnectionCount() == 1 {
		c.state = ConnectionDisconnecting
		if err := c.target.DisconnectAbility(); err != nil {
			return fmt.Errorf("disconnect %s: %w", c.target.URI(), err)
		}
		return nil
	}
	c.state = ConnectionDisconnected
	return nil
}

// CompleteDisconnect reports the end of the binding to the client. When the
// service died the client receives AbilityDied and the binding is marked
// abnormal.
func (c *Connection) CompleteDisconnect(result errcode.Code, died bool) {
	if result == errcode.OK {
		c.state = ConnectionDisconnected
	}
	code := result
	if died {
		c.abnormal = true
		c.state = ConnectionDisconnected
		code = errcode.AbilityDied
	}
	if c.callback != nil {
		c.callback.OnAbilityDisconnectDone(c.target.Element(), code)
	}
}

// ScheduleDisconnectAbilityDone handles the service's disconnect-done
func (c *Connection) ScheduleDisconnectAbilityDone() error {
	if c.state != ConnectionDisconnecting {
		return errcode.InvalidConnectionState
	}
	c.CompleteDisconnect(errcode.OK, false)
	return nil
}

// ScheduleConnectAbilityDone checks the binding is waiting for connect-done
func (c *Connection) ScheduleConnectAbilityDone() error {
	if c.state != ConnectionConnecting {
		return errcode.InvalidConnectionState
	}
	return nil
}

// Dump returns the connection's dump lines
func (c *Connection) Dump() []string {
	return []string{
		fmt.Sprintf("          ConnectionRecord ID #%d  state #%s  caller #%s", c.id, c.state, c.callerToken),
		fmt.Sprintf("          target [%s]", c.target.URI()),
	}
}
