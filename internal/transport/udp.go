package transport

import (
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
)

// UDPPeer maps one controller identity to its datagram address.
type UDPPeer struct {
	ID   string
	Addr string
}

// UDP carries frames over unicast datagrams. UDP offers exactly the
// guarantees the protocol is designed for: none. Identity is by source
// address; a controller counts as connected from its first datagram, and
// silence is left to the retry/expiry machinery upstream.
type UDP struct {
	mtu    int
	conn   *net.UDPConn
	logger zerolog.Logger

	mu     sync.Mutex
	byID   map[string]*net.UDPAddr
	byAddr map[string]string
	seen   map[string]bool
	closed bool

	events chan Event
	done   chan struct{}
}

// NewUDP binds listen and starts the read loop.
func NewUDP(listen string, mtu int, peers []UDPPeer, logger zerolog.Logger) (*UDP, error) {
	laddr, err := net.ResolveUDPAddr("udp", listen)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve listen addr %q: %w", listen, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %q: %w", listen, err)
	}

	u := &UDP{
		mtu:    mtu,
		conn:   conn,
		logger: logger,
		byID:   make(map[string]*net.UDPAddr, len(peers)),
		byAddr: make(map[string]string, len(peers)),
		seen:   make(map[string]bool, len(peers)),
		events: make(chan Event, 256),
		done:   make(chan struct{}),
	}
	for _, p := range peers {
		raddr, err := net.ResolveUDPAddr("udp", p.Addr)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("transport: resolve peer %s addr %q: %w", p.ID, p.Addr, err)
		}
		u.byID[p.ID] = raddr
		u.byAddr[raddr.String()] = p.ID
	}
	go u.readLoop()
	return u, nil
}

func (u *UDP) MaxFrameSize() int { return u.mtu }

func (u *UDP) Events() <-chan Event { return u.events }

// Send writes one datagram to the controller's configured address.
func (u *UDP) Send(controllerID string, frame []byte) error {
	if len(frame) > u.mtu {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(frame), u.mtu)
	}
	u.mu.Lock()
	raddr, ok := u.byID[controllerID]
	closed := u.closed
	u.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrPeerUnreachable, controllerID)
	}
	if _, err := u.conn.WriteToUDP(frame, raddr); err != nil {
		return fmt.Errorf("transport: send to %s: %w", controllerID, err)
	}
	return nil
}

func (u *UDP) Close() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil
	}
	u.closed = true
	u.mu.Unlock()
	err := u.conn.Close()
	<-u.done
	close(u.events)
	return err
}

func (u *UDP) readLoop() {
	defer close(u.done)
	buf := make([]byte, u.mtu+1)
	for {
		n, raddr, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			u.mu.Lock()
			closed := u.closed
			u.mu.Unlock()
			if !closed {
				u.logger.Warn().Err(err).Msg("udp read failed")
			}
			return
		}
		if n > u.mtu {
			u.logger.Warn().Int("bytes", n).Msg("oversize datagram dropped")
			continue
		}
		u.mu.Lock()
		id, known := u.byAddr[raddr.String()]
		first := known && !u.seen[raddr.String()]
		if first {
			u.seen[raddr.String()] = true
		}
		u.mu.Unlock()
		if !known {
			u.logger.Debug().Str("addr", raddr.String()).Msg("datagram from unknown peer dropped")
			continue
		}
		if first {
			u.emit(Event{Kind: EventConnect, ControllerID: id})
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		u.emit(Event{Kind: EventFrame, ControllerID: id, Frame: frame})
	}
}

func (u *UDP) emit(ev Event) {
	select {
	case u.events <- ev:
	default:
		u.logger.Warn().Str("controller", ev.ControllerID).Msg("event queue full, frame lost")
	}
}
