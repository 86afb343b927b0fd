package handler

import (
	"net/http"
	"time"

	"convene/internal/auth"
	"convene/internal/coordinator"
	"convene/internal/repository"
	"convene/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	roomWriteWait  = 10 * time.Second
	roomPongWait   = 60 * time.Second
	roomPingPeriod = (roomPongWait * 9) / 10
)

var roomUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// UpgradeRoomWS upgrades to WebSocket for a room; query: token. The
// member is resolved from the token and attached to the room group.
// Connecting to an unknown room id creates the room.
func UpgradeRoomWS(
	resolver *auth.Resolver,
	rooms *repository.RoomRepository,
	users *repository.UserRepository,
	hub *ws.RoomHub,
	coord *coordinator.Coordinator,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		roomID := c.Param("room_id")
		if token == "" || roomID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token and room id required"})
			return
		}
		user, err := resolver.ResolveMember(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		room, err := rooms.GetOrCreate(roomID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not open room"})
			return
		}
		now := time.Now().UTC()
		if err := users.TouchLastLoggedIn(user.ID, now); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not open room"})
			return
		}
		user.LastLoggedIn = now

		conn, err := roomUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		client := ws.NewClient(user.ID, room.ID)
		hub.Join(room.ID, client)
		defer func() {
			hub.Leave(room.ID, client)
			client.Close()
		}()

		conn.SetReadDeadline(time.Now().Add(roomPongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(roomPongWait))
			return nil
		})
		go func() {
			ticker := time.NewTicker(roomPingPeriod)
			defer ticker.Stop()
			for {
				select {
				case msg, ok := <-client.Send:
					if !ok {
						return
					}
					conn.SetWriteDeadline(time.Now().Add(roomWriteWait))
					if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
						return
					}
				case <-ticker.C:
					conn.SetWriteDeadline(time.Now().Add(roomWriteWait))
					if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
						return
					}
				}
			}
		}()

		session := &coordinator.Session{User: user, Room: room, Client: client}
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				break
			}
			coord.HandleFrame(c.Request.Context(), session, raw)
		}
	}
}
