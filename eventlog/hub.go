package eventlog

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"github.com/cardtable/tricksync/codec"
)

const (
	writeDeadline        = 5 * time.Second
	shutdownPollInterval = 200 * time.Millisecond
)

// connAndDone pairs a websocket connection with a channel the hub loop uses
// to signal the web handler that registration finished.
type connAndDone struct {
	matchID    string
	connection *websocket.Conn
	doneChan   chan bool
}

type broadcastMsg struct {
	matchID string
	data    []byte
}

// Hub fans appended events out to the websocket subscribers of each match.
// All bookkeeping happens on the single Run loop; the exported methods are
// safe for concurrent use.
type Hub struct {
	connections map[string]map[*websocket.Conn]bool
	broadcast   chan broadcastMsg
	register    chan connAndDone
	unregister  chan connAndDone
	countReq    chan chan int
	shutdown    chan bool
	isRunning   atomic.Bool
}

func NewHub() *Hub {
	h := &Hub{
		connections: map[string]map[*websocket.Conn]bool{},
		broadcast:   make(chan broadcastMsg),
		register:    make(chan connAndDone),
		unregister:  make(chan connAndDone),
		countReq:    make(chan chan int),
		shutdown:    make(chan bool),
	}
	go h.Run()
	return h
}

// BroadcastEvents pushes events to every connection subscribed to the match.
func (h *Hub) BroadcastEvents(matchID string, events []*Event) {
	for _, ev := range events {
		data, err := codec.Encode(ev)
		if err != nil {
			log.Logger.Error().Err(err).Msg("event not serializable, dropping broadcast")
			continue
		}
		h.broadcast <- broadcastMsg{matchID: matchID, data: data}
	}
}

// ConnectionCount reports the number of live subscriber connections.
func (h *Hub) ConnectionCount() int {
	resp := make(chan int)
	h.countReq <- resp
	return <-resp
}

func (h *Hub) RegisterConnection(matchID string, ws *websocket.Conn) {
	done := make(chan bool)
	h.register <- connAndDone{matchID: matchID, connection: ws, doneChan: done}
	<-done
}

func (h *Hub) UnregisterConnection(matchID string, ws *websocket.Conn) {
	done := make(chan bool)
	h.unregister <- connAndDone{matchID: matchID, connection: ws, doneChan: done}
	<-done
}

func (h *Hub) Shutdown() {
	h.shutdown <- true
	for h.isRunning.Load() {
		time.Sleep(shutdownPollInterval)
	}
}

func (h *Hub) Run() {
	if h.isRunning.Load() {
		return
	}
	h.isRunning.Store(true)
	drop := func(matchID string, conn *websocket.Conn) {
		conns := h.connections[matchID]
		if _, ok := conns[conn]; !ok {
			return
		}
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.connections, matchID)
		}
		if err := eris.Wrap(conn.Close(), ""); err != nil {
			log.Logger.Error().Err(err).Msg(eris.ToString(err, true))
		}
	}
Loop:
	for h.isRunning.Load() {
		select {
		case resp := <-h.countReq:
			n := 0
			for _, conns := range h.connections {
				n += len(conns)
			}
			resp <- n
		case reg := <-h.register:
			if h.connections[reg.matchID] == nil {
				h.connections[reg.matchID] = map[*websocket.Conn]bool{}
			}
			h.connections[reg.matchID][reg.connection] = true
			reg.doneChan <- true
		case unreg := <-h.unregister:
			drop(unreg.matchID, unreg.connection)
			unreg.doneChan <- true
		case msg := <-h.broadcast:
			var waitGroup sync.WaitGroup
			var failedMu sync.Mutex
			var failed []*websocket.Conn
			for conn := range h.connections[msg.matchID] {
				conn := conn
				waitGroup.Add(1)
				go func() {
					defer waitGroup.Done()
					if err := conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
						failedMu.Lock()
						failed = append(failed, conn)
						failedMu.Unlock()
						return
					}
					if err := conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
						failedMu.Lock()
						failed = append(failed, conn)
						failedMu.Unlock()
					}
				}()
			}
			waitGroup.Wait()
			for _, conn := range failed {
				log.Logger.Warn().Str("match_id", msg.matchID).Msg("dropping unwritable event subscriber")
				drop(msg.matchID, conn)
			}
		case <-h.shutdown:
			go func() {
				for range h.shutdown { //nolint:revive // drains the channel until closed
				}
			}()
			for matchID, conns := range h.connections {
				for conn := range conns {
					drop(matchID, conn)
				}
			}
			break Loop
		}
	}
	h.isRunning.Store(false)
}

// NewWebSocketHandler returns the fiber websocket handler that keeps a
// subscriber registered for the connection's lifetime. The client never
// sends anything meaningful; reads only detect the close.
func (h *Hub) NewWebSocketHandler() func(conn *websocket.Conn) {
	return func(conn *websocket.Conn) {
		matchID := conn.Params("matchID")
		h.RegisterConnection(matchID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		h.UnregisterConnection(matchID, conn)
	}
}
