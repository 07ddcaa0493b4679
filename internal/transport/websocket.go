// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	applog "tinnitus/internal/log"
)

const (
	wsPath         = "/ws"
	wsQueueSize    = 256
	wsWriteTimeout = 2 * time.Second
)

// WebSocketPublisher broadcasts events as JSON text frames to every client
// connected on /ws. Events are queued; when the queue is full new events are
// dropped rather than blocking the processing pipeline.
type WebSocketPublisher struct {
	addr      string
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	server   *http.Server
	listener net.Listener
}

// NewWebSocketPublisher creates a publisher for addr ("host:port"). Call
// Start to listen, or mount Handler on an existing server.
func NewWebSocketPublisher(addr string) *WebSocketPublisher {
	wsp := &WebSocketPublisher{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Local tool, any origin may watch progress.
			},
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Event, wsQueueSize),
		done:      make(chan struct{}),
	}

	wsp.wg.Add(1)
	go wsp.handleBroadcasts()
	return wsp
}

// Handler returns the HTTP handler serving the WebSocket endpoint.
func (wsp *WebSocketPublisher) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(wsPath, wsp.handleWebSocket)
	return mux
}

// Start binds the listen address and serves in the background.
func (wsp *WebSocketPublisher) Start() error {
	ln, err := net.Listen("tcp", wsp.addr)
	if err != nil {
		return err
	}
	wsp.listener = ln
	wsp.server = &http.Server{
		Handler:           wsp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		applog.Infof("WebSocketPublisher: Listening on ws://%s%s", ln.Addr(), wsPath)
		if err := wsp.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Errorf("WebSocketPublisher: Server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address once Start has succeeded, else the
// configured one.
func (wsp *WebSocketPublisher) Addr() string {
	if wsp.listener != nil {
		return wsp.listener.Addr().String()
	}
	return wsp.addr
}

// ClientCount returns the number of connected clients.
func (wsp *WebSocketPublisher) ClientCount() int {
	wsp.clientsMu.Lock()
	defer wsp.clientsMu.Unlock()
	return len(wsp.clients)
}

func (wsp *WebSocketPublisher) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wsp.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("WebSocketPublisher: Upgrade error: %v", err)
		return
	}

	wsp.clientsMu.Lock()
	wsp.clients[conn] = true
	total := len(wsp.clients)
	wsp.clientsMu.Unlock()
	applog.Debugf("WebSocketPublisher: Client connected, total: %d", total)

	// Clients never send; a read error means they went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wsp.drop(conn)
				return
			}
		}
	}()
}

func (wsp *WebSocketPublisher) drop(conn *websocket.Conn) {
	wsp.clientsMu.Lock()
	_, ok := wsp.clients[conn]
	delete(wsp.clients, conn)
	total := len(wsp.clients)
	wsp.clientsMu.Unlock()
	if ok {
		conn.Close()
		applog.Debugf("WebSocketPublisher: Client disconnected, total: %d", total)
	}
}

func (wsp *WebSocketPublisher) handleBroadcasts() {
	defer wsp.wg.Done()
	for {
		select {
		case ev := <-wsp.broadcast:
			wsp.send(ev)
		case <-wsp.done:
			return
		}
	}
}

func (wsp *WebSocketPublisher) send(ev Event) {
	wsp.clientsMu.Lock()
	defer wsp.clientsMu.Unlock()
	for client := range wsp.clients {
		_ = client.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := client.WriteJSON(ev); err != nil {
			applog.Warnf("WebSocketPublisher: Error sending to client: %v", err)
			client.Close()
			delete(wsp.clients, client)
		}
	}
}

// Publish queues ev for broadcast. A full queue drops the event.
func (wsp *WebSocketPublisher) Publish(ev Event) error {
	select {
	case <-wsp.done:
		return errors.New("websocket publisher closed")
	default:
	}

	select {
	case wsp.broadcast <- ev:
	default:
		applog.Warnf("WebSocketPublisher: Queue full, dropping %s event for %s", ev.Status, ev.SourcePath)
	}
	return nil
}

// Close flushes queued events, disconnects clients and stops the server.
func (wsp *WebSocketPublisher) Close() error {
	var err error
	wsp.closeOnce.Do(func() {
		applog.Debugf("WebSocketPublisher: Closing")
		wsp.flush()
		close(wsp.done)
		wsp.wg.Wait()

		wsp.clientsMu.Lock()
		for client := range wsp.clients {
			_ = client.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteTimeout))
			client.Close()
		}
		wsp.clients = make(map[*websocket.Conn]bool)
		wsp.clientsMu.Unlock()

		if wsp.server != nil {
			err = wsp.server.Close()
		}
	})
	return err
}

// flush sends whatever is still queued.
func (wsp *WebSocketPublisher) flush() {
	for {
		select {
		case ev := <-wsp.broadcast:
			wsp.send(ev)
		default:
			return
		}
	}
}

var _ Publisher = (*WebSocketPublisher)(nil)
