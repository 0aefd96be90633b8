package admin

import (
	"sync/atomic"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// connection is one websocket subscriber of the decision feed.
type connection struct {
	ws *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte
}

// reader drains (and ignores) client frames so control messages are
// processed, and returns when the peer goes away.
func (c *connection) reader() {
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			break
		}
	}
	c.ws.Close()
}

func (c *connection) writer() {
	for message := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
			break
		}
	}
	c.ws.Close()
}

type hub struct {
	conns      map[*connection]bool
	broadcast  chan []byte
	register   chan *connection
	unregister chan *connection
	stop       chan struct{}
	count      int32
}

func newHub() *hub {
	return &hub{
		conns:      make(map[*connection]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *connection),
		unregister: make(chan *connection),
		stop:       make(chan struct{}),
	}
}

func (h *hub) run() {
	for {
		select {
		case c := <-h.register:
			h.conns[c] = true
		case c := <-h.unregister:
			if h.conns[c] {
				delete(h.conns, c)
				close(c.send)
			}
		case m := <-h.broadcast:
			for c := range h.conns {
				select {
				case c.send <- m:
				default:
					// slow subscriber
					delete(h.conns, c)
					close(c.send)
				}
			}
		case <-h.stop:
			for c := range h.conns {
				delete(h.conns, c)
				close(c.send)
			}
			atomic.StoreInt32(&h.count, 0)
			return
		}
		atomic.StoreInt32(&h.count, int32(len(h.conns)))
	}
}

// publish never blocks the caller; a full queue drops the message.
func (h *hub) publish(m []byte) {
	select {
	case h.broadcast <- m:
	default:
		glog.Warningf("admin: decision feed full, dropping message")
	}
}

func (h *hub) clients() int {
	return int(atomic.LoadInt32(&h.count))
}
