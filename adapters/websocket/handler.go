package websocket

import (
	"github.com/labstack/echo/v4"
)

// Handler serves the "/ws" endpoint. It expects JWT middleware to have set
// the session identity on the echo context already.
func (s *Server) Handler(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	userID := c.Get("user_id").(string)
	sessionID := c.Get("session_id").(string)

	client := NewClient(conn, s, userID, sessionID)
	s.hub.Register(client)

	client.Run()

	defer s.hub.Unregister(client)

	// Hold the handler open until the connection is done.
	<-client.Context().Done()

	return nil
}
