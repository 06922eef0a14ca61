package gossip

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/feelesschain/fullnode/internal/logging"
)

const (
	pingInterval   = 10 * time.Second
	maxMissedPings = 3
	reconnectDelay = 10 * time.Second
	maxSilenceTries = 3
)

// peerConn is one gossip socket, inbound or outbound (spec.md §4.6).
// Outbound connections additionally own the reconnect/silence state
// machine; inbound connections are torn down by the server on close.
type peerConn struct {
	id      uuid.UUID
	url     string // empty for inbound
	conn    *websocket.Conn
	writeMu sync.Mutex
	limiter *rate.Limiter

	missedPings int
	silenced    bool
	failures    int

	closed chan struct{}
}

func newPeerConn(id uuid.UUID, url string, conn *websocket.Conn) *peerConn {
	return &peerConn{
		id:      id,
		url:     url,
		conn:    conn,
		limiter: rate.NewLimiter(rate.Limit(50), 100),
		closed:  make(chan struct{}),
	}
}

func (p *peerConn) send(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	env := Envelope{Event: event, Data: raw}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteJSON(env)
}

func (p *peerConn) close() {
	select {
	case <-p.closed:
	default:
		close(p.closed)
	}
	_ = p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	p.conn.Close()
}

// keepalive runs the per-socket heartbeat loop (spec.md §4.6 "every 10s
// send a ping; if three consecutive pings go unanswered, terminate").
func (p *peerConn) keepalive(ctx context.Context, onDead func()) {
	p.conn.SetPongHandler(func(string) error {
		p.missedPings = 0
		return nil
	})

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.closed:
			return
		case <-ticker.C:
			if p.missedPings >= maxMissedPings {
				logging.Warn("peer missed too many pings, terminating", "peer", p.url)
				p.close()
				onDead()
				return
			}
			p.writeMu.Lock()
			err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(2*time.Second))
			p.writeMu.Unlock()
			if err != nil {
				onDead()
				return
			}
			p.missedPings++
		}
	}
}

// readLoop reads frames until the connection dies, dispatching each
// envelope to handle.
func (p *peerConn) readLoop(handle func(Envelope)) error {
	for {
		var env Envelope
		if err := p.conn.ReadJSON(&env); err != nil {
			return err
		}
		if !p.limiter.Allow() {
			continue // rate-limited: drop, do not terminate the connection
		}
		handle(env)
	}
}
