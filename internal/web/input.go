package web

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeney/holdclick/internal/device"
	"github.com/sweeney/holdclick/internal/emulate"
)

// InputMessage is one sample sent by a remote touch client.
//
//	{"t":"abs","x":120,"y":48}    absolute motion; either axis may be omitted
//	{"t":"rel","dx":3,"dy":-1}    relative motion
//	{"t":"down","button":1}       button press; button defaults to 1
//	{"t":"up","button":1}         button release
type InputMessage struct {
	T      string `json:"t"`
	X      *int   `json:"x,omitempty"`
	Y      *int   `json:"y,omitempty"`
	DX     int    `json:"dx,omitempty"`
	DY     int    `json:"dy,omitempty"`
	Button int    `json:"button,omitempty"`
}

// handleInput upgrades the connection and feeds samples to the device until
// the client goes away. Buttons the client left pressed are released.
func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	remote := s.remote[d.Name]
	s.mu.Unlock()
	if !remote {
		writeError(w, http.StatusForbidden, fmt.Errorf("device %q does not accept remote input", d.Name))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: device %s: upgrade from %s: %v", d.Name, r.RemoteAddr, err)
		return
	}
	s.trackConn(conn, true)
	defer s.trackConn(conn, false)

	log.Printf("web: device %s: input client %s connected", d.Name, r.RemoteAddr)
	held := make(map[emulate.Button]bool)
	defer func() {
		for b := range held {
			d.Button(b, false)
		}
		log.Printf("web: device %s: input client %s disconnected", d.Name, r.RemoteAddr)
	}()

	for {
		var msg InputMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, net.ErrClosed) {
				log.Printf("web: device %s: input read: %v", d.Name, err)
			}
			return
		}
		if err := applyInput(d, msg, held); err != nil {
			conn.WriteJSON(ErrorJSON{Error: err.Error()})
		}
	}
}

// applyInput delivers one message to d and tracks which buttons are down.
func applyInput(d *device.Device, msg InputMessage, held map[emulate.Button]bool) error {
	switch msg.T {
	case "abs":
		var v emulate.Valuators
		if msg.X != nil {
			v.Set(emulate.AxisX, *msg.X)
		}
		if msg.Y != nil {
			v.Set(emulate.AxisY, *msg.Y)
		}
		d.AbsoluteMotion(v)
	case "rel":
		d.RelativeMotion(msg.DX, msg.DY)
	case "down", "up":
		b := msg.Button
		if b == 0 {
			b = int(emulate.PrimaryButton)
		}
		if b < 1 || b > 255 {
			return fmt.Errorf("invalid button %d", msg.Button)
		}
		pressed := msg.T == "down"
		if pressed {
			held[emulate.Button(b)] = true
		} else {
			delete(held, emulate.Button(b))
		}
		d.Button(emulate.Button(b), pressed)
	default:
		return fmt.Errorf("unknown message type %q", msg.T)
	}
	return nil
}

func (s *Server) trackConn(conn *websocket.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
		return
	}
	if _, ok := s.conns[conn]; ok {
		delete(s.conns, conn)
		conn.Close()
	}
}

// closeConns closes every websocket client. Hijacked connections are not
// closed by http.Server.Shutdown.
func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
		conn.Close()
		delete(s.conns, conn)
	}
}
