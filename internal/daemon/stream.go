package daemon

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"pinganalyst/internal/logging"
	"pinganalyst/internal/progress"
	"pinganalyst/internal/store"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Same-origin pages and the CLI are the only expected clients; the token
	// gate runs before the upgrade.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleStream pushes progress events for one match over a websocket until
// the match reaches a terminal state or the client goes away.
func (s *apiServer) handleStream(w http.ResponseWriter, r *http.Request) {
	id, ok := s.matchID(w, r)
	if !ok {
		return
	}
	match, err := s.daemon.GetMatch(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrMatchNotFound) {
			s.writeError(w, http.StatusNotFound, "match not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	hub := s.daemon.workflow.Hub()
	events, cancel := hub.Subscribe(id)
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", logging.Int64(logging.FieldMatchID, id), logging.Error(err))
		return
	}
	defer conn.Close()

	if _, ok := hub.Latest(id); !ok || match.Status.IsTerminal() {
		ev := eventFromMatch(match)
		if err := writeEvent(conn, ev); err != nil || ev.Terminal() {
			closeStream(conn)
			return
		}
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			closeStream(conn)
			return
		case <-closed:
			return
		case ev, ok := <-events:
			if !ok {
				closeStream(conn)
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				return
			}
			if ev.Terminal() {
				closeStream(conn)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, ev progress.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(ev)
}

func closeStream(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(streamWriteWait))
}

func eventFromMatch(match *store.Match) progress.Event {
	ev := progress.Event{
		MatchID:     match.ID,
		Status:      string(match.Status),
		Message:     match.ProgressMessage,
		ChunksDone:  match.ChunksDone,
		ChunksTotal: match.ChunksTotal,
		Error:       match.ErrorMessage,
		Time:        match.UpdatedAt,
	}
	if analysis, ok, err := match.Analysis(); err == nil && ok {
		ev.Analysis = &analysis
	}
	return ev
}
