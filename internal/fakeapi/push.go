package fakeapi

import (
	"encoding/json"
	"net/http"

	"golang.org/x/net/websocket"

	"github.com/kazz187/trackline/internal/notification"
	"github.com/kazz187/trackline/internal/realtime"
	"github.com/kazz187/trackline/pkg/clog"
)

func (s *Server) servePush(w http.ResponseWriter, r *http.Request) {
	// websocket.Server, unlike websocket.Handler, does not check the Origin
	// header; CORS is handled in front of it.
	websocket.Server{Handler: s.pushSession}.ServeHTTP(w, r)
}

// pushSession forwards every notification to one client until either side
// goes away. "ping" frames are answered with "pong".
func (s *Server) pushSession(ws *websocket.Conn) {
	ctx := ws.Request().Context()
	subID, pushes := s.state.pushes.Subscribe(64)
	defer s.state.pushes.Unsubscribe(subID)
	s.live.Add(1)
	defer s.live.Add(-1)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var msg string
			if err := websocket.Message.Receive(ws, &msg); err != nil {
				return
			}
			if msg == "ping" {
				if err := websocket.Message.Send(ws, "pong"); err != nil {
					return
				}
			}
		}
	}()

	sent := 0
	defer func() {
		clog.AddAttribute(ctx, "pushed", sent)
		_ = ws.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case frame, ok := <-pushes:
			if !ok {
				return
			}
			if err := websocket.Message.Send(ws, frame); err != nil {
				return
			}
			sent++
		}
	}
}

// LiveConnections is the number of push sessions currently subscribed.
func (s *Server) LiveConnections() int {
	return int(s.live.Load())
}

func encodePush(n notification.Notification) (string, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return "", err
	}
	frame, err := json.Marshal(realtime.Envelope{Type: notification.PushType, Data: data})
	if err != nil {
		return "", err
	}
	return string(frame), nil
}
