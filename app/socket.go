package app

import (
	"log"

	"github.com/googollee/go-socket.io"
)

// Clients join the room named by a run UUID to follow its output.
var sockets *socketio.Server

func broadcastRun(uuid string, event string, payload interface{}) {
	if sockets == nil {
		return
	}
	sockets.BroadcastToRoom("/", uuid, event, payload)
}

func init() {
	SetupFuncs = append(SetupFuncs, func(server *socketio.Server) {
		sockets = server
		server.OnEvent("/", "join", func(s socketio.Conn, uuid string) {
			if GetRun(uuid) == nil {
				s.Emit("error", "no such run")
				return
			}
			s.Join(uuid)
		})
		server.OnEvent("/", "leave", func(s socketio.Conn, uuid string) {
			s.Leave(uuid)
		})
		server.OnError("/", func(s socketio.Conn, err error) {
			log.Printf("[socket] error: %v", err)
		})
	})
}
