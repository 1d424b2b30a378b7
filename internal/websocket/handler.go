package websocket

import (
	"github.com/gofiber/websocket/v2"
)

// ServeWs registers a websocket connection for the given user and starts
// its read and write pumps.
func ServeWs(hub *Hub, conn *websocket.Conn, userID string) {
	client := &Client{
		Hub:    hub,
		Conn:   conn,
		UserID: userID,
		Send:   make(chan []byte, 256),
	}
	client.Hub.register <- client

	go client.writePump()
	client.readPump()
}
