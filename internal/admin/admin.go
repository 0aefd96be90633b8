// =============================================================================
// ADMIN - HTTP Window into a Replica
// =============================================================================
//
//   GET  /status      replica id, clock, membership, acceptor and proposer
//   GET  /inventory   current quantities, as `list` would print them
//   POST /command     form field "command", run through the dispatcher
//   GET  /decisions   websocket; one JSON message per applied decision
//
// Commands posted here take the same path as commands from TCP clients.
// The form value is HTML-sanitized before it reaches the dispatcher.
//
// =============================================================================

package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-martini/martini"
	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/kennygrant/sanitize"
	"github.com/martini-contrib/render"

	"github.com/senutpal/quorumstore/internal/clock"
	"github.com/senutpal/quorumstore/internal/node"
	"github.com/senutpal/quorumstore/internal/paxos"
)

const DefaultCommandTimeout = 5 * time.Second

// Replica is what the admin surface needs from a node.Replica.
type Replica interface {
	Status() node.Status
	Inventory() map[string]int
	Execute(ctx context.Context, line string) string
	Subscribe(fn func(paxos.Decision))
}

type Admin struct {
	replica Replica
	timeout time.Duration
	hub     *hub
	m       *martini.Martini

	mu   sync.Mutex
	srv  *http.Server
	stop sync.Once
}

var upgrader = &websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}

type decisionMessage struct {
	Replica  int    `json:"replica"`
	ID       string `json:"id"`
	Command  string `json:"command"`
	Number   string `json:"number"`
	Response string `json:"response"`
}

func New(r Replica) *Admin {
	a := &Admin{
		replica: r,
		timeout: DefaultCommandTimeout,
		hub:     newHub(),
	}
	go a.hub.run()
	r.Subscribe(a.publish)

	m := martini.New()
	m.Use(martini.Recovery())
	m.Use(render.Renderer())
	router := martini.NewRouter()
	router.Get("/status", a.status)
	router.Get("/inventory", a.inventory)
	router.Post("/command", a.command)
	router.Get("/decisions", a.decisions)
	m.MapTo(router, (*martini.Routes)(nil))
	m.Action(router.Handle)
	a.m = m
	return a
}

// SetCommandTimeout bounds how long POST /command waits for consensus.
func (a *Admin) SetCommandTimeout(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.timeout = d
}

func (a *Admin) commandTimeout() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timeout
}

func (a *Admin) Handler() http.Handler {
	return a.m
}

func (a *Admin) Start(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: a.m}
	a.mu.Lock()
	a.srv = srv
	a.mu.Unlock()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			glog.Errorf("admin: %v", err)
		}
	}()
	glog.Infof("admin listening on %s", ln.Addr())
	return ln.Addr(), nil
}

// Stop closes the decision feed and shuts the listener down. It may be
// called more than once.
func (a *Admin) Stop() error {
	a.stop.Do(func() { close(a.hub.stop) })
	a.mu.Lock()
	srv := a.srv
	a.srv = nil
	a.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func (a *Admin) status(r render.Render) {
	r.JSON(http.StatusOK, a.replica.Status())
}

func (a *Admin) inventory(r render.Render) {
	inv := a.replica.Inventory()
	r.JSON(http.StatusOK, map[string]interface{}{
		"inventory": inv,
		"lines":     strings.Split(a.replica.Execute(context.Background(), "list"), "\n"),
	})
}

func (a *Admin) command(req *http.Request, r render.Render) {
	cmd := strings.TrimSpace(sanitize.HTML(req.FormValue("command")))
	if cmd == "" {
		r.JSON(http.StatusBadRequest, map[string]string{"error": "missing command"})
		return
	}
	ctx, cancel := context.WithTimeout(req.Context(), a.commandTimeout())
	defer cancel()
	resp := a.replica.Execute(ctx, cmd)
	r.JSON(http.StatusOK, map[string]string{"command": cmd, "response": resp})
}

func (a *Admin) decisions(w http.ResponseWriter, req *http.Request) {
	ws, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		glog.Warningf("admin: websocket upgrade: %v", err)
		return
	}
	c := &connection{send: make(chan []byte, 256), ws: ws}
	select {
	case a.hub.register <- c:
	case <-a.hub.stop:
		ws.Close()
		return
	}
	defer func() {
		select {
		case a.hub.unregister <- c:
		case <-a.hub.stop:
		}
	}()
	go c.writer()
	c.reader()
}

func (a *Admin) publish(d paxos.Decision) {
	b, err := json.Marshal(decisionMessage{
		Replica:  d.Replica,
		ID:       d.Value.ID.String(),
		Command:  d.Value.Command,
		Number:   clock.FormatOptional(d.Number),
		Response: d.Response,
	})
	if err != nil {
		glog.Errorf("admin: %v", err)
		return
	}
	a.hub.publish(b)
}
