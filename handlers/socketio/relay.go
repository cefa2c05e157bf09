// Package socketio exposes the same relay semantics as handlers/relay to
// browser clients over socket.io: design rooms, best-effort broadcast, and
// room occupancy change notifications.
package socketio

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

var (
	activeRooms = make(map[string]int)
	roomsMutex  sync.RWMutex
)

// ActiveRooms returns the current per-design occupancy of the socket.io
// relay.
func ActiveRooms() map[string]int {
	roomsMutex.RLock()
	defer roomsMutex.RUnlock()
	rooms := make(map[string]int, len(activeRooms))
	for k, v := range activeRooms {
		rooms[k] = v
	}
	return rooms
}

// NewServer builds the socket.io relay endpoint.
func NewServer() *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(5000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})
	srv := socketio.NewServer(nil, opts)

	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}

		me := socket.Id()
		myRoom := socketio.Room(me)
		_ = srv.To(myRoom).Emit("init-session")

		socket.On("design-join", func(datas ...any) {
			if len(datas) == 0 {
				return
			}
			designID, ok := datas[0].(string)
			if !ok || designID == "" {
				return
			}
			room := socketio.Room(designID)
			socket.Join(room)
			logrus.WithFields(logrus.Fields{
				"socket_id": me,
				"design_id": designID,
			}).Debug("Socket joined design room")

			srv.In(room).FetchSockets()(func(users []*socketio.RemoteSocket, fetchErr error) {
				if fetchErr != nil {
					logrus.WithError(fetchErr).Warn("Failed to fetch room sockets")
					return
				}

				roomsMutex.Lock()
				activeRooms[designID] = len(users)
				roomsMutex.Unlock()

				if len(users) <= 1 {
					_ = srv.To(myRoom).Emit("first-in-design")
				} else {
					_ = socket.Broadcast().To(room).Emit("collaborator-joined", me)
				}

				members := make([]socketio.SocketId, 0, len(users))
				for _, user := range users {
					members = append(members, user.Id())
				}
				srv.In(room).Emit("room-user-change", members)
			})
		})

		// design-broadcast relays patch payloads; the volatile variant is for
		// cursor traffic that may be dropped under pressure.
		socket.On("design-broadcast", func(datas ...any) {
			relayBroadcast(socket, datas, false)
		})
		socket.On("design-volatile-broadcast", func(datas ...any) {
			relayBroadcast(socket, datas, true)
		})

		socket.On("disconnecting", func(datas ...any) {
			for _, currentRoom := range socket.Rooms().Keys() {
				designID := string(currentRoom)
				srv.In(currentRoom).FetchSockets()(func(users []*socketio.RemoteSocket, _ error) {
					others := make([]socketio.SocketId, 0, len(users))
					for _, user := range users {
						if user.Id() != me {
							others = append(others, user.Id())
						}
					}

					roomsMutex.Lock()
					if len(others) == 0 {
						delete(activeRooms, designID)
					} else {
						activeRooms[designID] = len(others)
					}
					roomsMutex.Unlock()

					if len(others) > 0 {
						srv.In(currentRoom).Emit("room-user-change", others)
					}
				})
			}
		})

		socket.On("disconnect", func(datas ...any) {
			socket.RemoveAllListeners("")
			socket.Disconnect(true)
		})
	})

	return srv
}

func relayBroadcast(socket *socketio.Socket, datas []any, volatile bool) {
	if len(datas) < 2 {
		return
	}
	designID, ok := datas[0].(string)
	if !ok || designID == "" {
		return
	}

	room := socketio.Room(designID)
	var err error
	if volatile {
		err = socket.Volatile().Broadcast().To(room).Emit("design-update", datas[1:]...)
	} else {
		err = socket.Broadcast().To(room).Emit("design-update", datas[1:]...)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"design_id": designID,
			"error":     err,
		}).Warn("Socket.io broadcast failed")
	}
}
