package server

import (
	"encoding/json"
	"errors"
	"log"
	"strconv"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"coinflip/internal/game"
)

// Health handler

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{
		"database": s.db.Health(),
		"cache":    s.cache.Health(),
		"game": fiber.Map{
			"status":            "running",
			"open_rooms":        len(s.gameManager.ListRooms()),
			"connected_clients": s.gameHub.GetClientCount(),
		},
	}
	return c.JSON(health)
}

// statusForError maps protocol errors onto HTTP status codes. Conflict-class
// errors are retryable after requerying state; the rest are not.
func statusForError(err error) int {
	switch {
	case errors.Is(err, game.ErrGameNotFound):
		return 404
	case errors.Is(err, game.ErrUnauthorized), errors.Is(err, game.ErrSelfJoin):
		return 403
	case errors.Is(err, game.ErrInsufficientFunds):
		return 402
	case errors.Is(err, game.ErrProgramPaused):
		return 503
	case errors.Is(err, game.ErrInvalidStatus),
		errors.Is(err, game.ErrAlreadyResolved),
		errors.Is(err, game.ErrAlreadyJoined),
		errors.Is(err, game.ErrAlreadyCommitted),
		errors.Is(err, game.ErrAlreadyRevealed),
		errors.Is(err, game.ErrTimeoutNotReached),
		errors.Is(err, game.ErrBothRevealed),
		errors.Is(err, game.ErrNotReadyToResolve),
		errors.Is(err, game.ErrGameExists):
		return 409
	default:
		return 400
	}
}

func roomError(c *fiber.Ctx, err error) error {
	return c.Status(statusForError(err)).JSON(game.RoomResponse{
		Success: false,
		Message: err.Error(),
	})
}

func roomOK(c *fiber.Ctx, room *game.Room) error {
	snap := room.Snapshot()
	return c.JSON(game.RoomResponse{Success: true, Room: &snap})
}

// roomParams pulls the (creator, gameId) key out of the path.
func roomParams(c *fiber.Ctx) (string, uint64, error) {
	creator := c.Params("creator")
	gameID, err := strconv.ParseUint(c.Params("gameId"), 10, 64)
	if err != nil {
		return "", 0, errors.New("game id must be an unsigned integer")
	}
	return creator, gameID, nil
}

// Room protocol handlers

func (s *FiberServer) createGameHandler(c *fiber.Ctx) error {
	var req game.CreateGameRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.UserID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "User ID is required"})
	}

	room, err := s.gameManager.CreateGame(c.Context(), req.UserID, req.GameID, req.BetAmount)
	if err != nil {
		return roomError(c, err)
	}
	return roomOK(c, room)
}

func (s *FiberServer) listRoomsHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"rooms": s.gameManager.ListRooms()})
}

func (s *FiberServer) getRoomHandler(c *fiber.Ctx) error {
	creator, gameID, err := roomParams(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	snap, err := s.gameManager.GetRoom(creator, gameID)
	if err != nil {
		return roomError(c, err)
	}
	return c.JSON(game.RoomResponse{Success: true, Room: &snap})
}

func (s *FiberServer) joinGameHandler(c *fiber.Ctx) error {
	creator, gameID, err := roomParams(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	var req game.JoinGameRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.UserID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "User ID is required"})
	}

	room, err := s.gameManager.JoinGame(c.Context(), creator, gameID, req.UserID)
	if err != nil {
		return roomError(c, err)
	}
	return roomOK(c, room)
}

func (s *FiberServer) makeCommitmentHandler(c *fiber.Ctx) error {
	creator, gameID, err := roomParams(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	var req game.CommitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.UserID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "User ID is required"})
	}
	commitment, err := game.ParseCommitment(req.Commitment)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	room, err := s.gameManager.MakeCommitment(c.Context(), creator, gameID, req.UserID, commitment)
	if err != nil {
		return roomError(c, err)
	}
	return roomOK(c, room)
}

func (s *FiberServer) revealChoiceHandler(c *fiber.Ctx) error {
	creator, gameID, err := roomParams(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	var req game.RevealRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.UserID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "User ID is required"})
	}
	choice, err := game.ParseSide(req.Choice)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	room, err := s.gameManager.RevealChoice(c.Context(), creator, gameID, req.UserID, choice, req.Secret)
	if err != nil {
		return roomError(c, err)
	}
	return roomOK(c, room)
}

func (s *FiberServer) cancelGameHandler(c *fiber.Ctx) error {
	creator, gameID, err := roomParams(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	var req game.CancelRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.UserID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "User ID is required"})
	}

	room, err := s.gameManager.CancelGame(c.Context(), creator, gameID, req.UserID)
	if err != nil {
		return roomError(c, err)
	}
	return roomOK(c, room)
}

func (s *FiberServer) handleTimeoutHandler(c *fiber.Ctx) error {
	creator, gameID, err := roomParams(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	room, err := s.gameManager.HandleTimeout(c.Context(), creator, gameID)
	if err != nil {
		return roomError(c, err)
	}
	return roomOK(c, room)
}

func (s *FiberServer) resolveManualHandler(c *fiber.Ctx) error {
	creator, gameID, err := roomParams(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	room, err := s.gameManager.ResolveManual(c.Context(), creator, gameID)
	if err != nil {
		return roomError(c, err)
	}
	return roomOK(c, room)
}

// buildCommitmentHandler generates a fresh secret and the matching
// commitment for a choice. Convenience for clients that cannot run the
// codec themselves; the secret never leaves the response.
func (s *FiberServer) buildCommitmentHandler(c *fiber.Ctx) error {
	var req struct {
		Choice string `json:"choice"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}
	choice, err := game.ParseSide(req.Choice)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	secret, err := game.GenerateSecret()
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to generate secret"})
	}
	return c.JSON(fiber.Map{
		"choice":     choice.String(),
		"secret":     secret,
		"commitment": game.Commit(choice, secret).String(),
	})
}

// History handlers

func (s *FiberServer) recentGamesHandler(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	games, err := s.db.ListRecentGames(c.Context(), limit)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to load games"})
	}
	return c.JSON(fiber.Map{"games": games})
}

func (s *FiberServer) playerGamesHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "User ID is required"})
	}
	limit := c.QueryInt("limit", 50)
	games, err := s.db.ListGamesByPlayer(c.Context(), userID, limit)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to load games"})
	}
	return c.JSON(fiber.Map{"games": games})
}

// Balance handlers

func (s *FiberServer) getUserBalanceHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "User ID is required"})
	}
	balance, err := s.gameManager.Balance(c.Context(), userID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to read balance"})
	}
	return c.JSON(fiber.Map{
		"user_id": userID,
		"balance": balance,
	})
}

func (s *FiberServer) setUserBalanceHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "User ID is required"})
	}

	var body struct {
		Balance uint64 `json:"balance"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := s.gameManager.SetBalance(c.Context(), userID, body.Balance); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to set balance"})
	}

	return c.JSON(fiber.Map{
		"user_id": userID,
		"balance": body.Balance,
		"message": "Balance updated successfully",
	})
}

// Stats handler

func (s *FiberServer) statsHandler(c *fiber.Ctx) error {
	games, volume := s.gameManager.Stats(c.Context())
	fees := s.gameManager.FeeSchedule()
	return c.JSON(fiber.Map{
		"total_games":              games,
		"total_volume":             volume,
		"house_fee_bps":            fees.HouseFeeBps,
		"cancellation_fee_bps":     fees.CancellationFeeBps,
		"resolution_fee_per_player": fees.ResolutionFeePerPlayer,
	})
}

// Admin handlers

func (s *FiberServer) pauseHandler(c *fiber.Ctx) error {
	s.gameManager.Pause()
	return c.JSON(fiber.Map{"message": "Room creation paused"})
}

func (s *FiberServer) unpauseHandler(c *fiber.Ctx) error {
	s.gameManager.Unpause()
	return c.JSON(fiber.Map{"message": "Room creation unpaused"})
}

func (s *FiberServer) updateFeesHandler(c *fiber.Ctx) error {
	var body struct {
		HouseFeeBps *uint64 `json:"house_fee_bps"`
	}
	if err := c.BodyParser(&body); err != nil || body.HouseFeeBps == nil {
		return c.Status(400).JSON(fiber.Map{"error": "house_fee_bps is required"})
	}

	fees := s.gameManager.FeeSchedule()
	fees.HouseFeeBps = *body.HouseFeeBps
	if err := s.gameManager.SetFeeSchedule(fees); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{
		"message":       "House fee updated",
		"house_fee_bps": *body.HouseFeeBps,
	})
}

// WebSocket handler

func (s *FiberServer) gameWebSocketHandler(conn *websocket.Conn) {
	userID := conn.Query("user_id", "anonymous")

	log.Printf("[WS] New connection from user: %s", userID)

	client := s.gameHub.RegisterClient(conn, userID)

	// Send the open room list on connect. All writes go through the client so
	// they serialize against broadcast fan-out on the same connection.
	client.SendEvent(game.EventMessage{
		Type: "room_list",
		Data: s.gameManager.ListRooms(),
	})

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[WS] Read error for user %s: %v", userID, err)
			s.gameHub.UnregisterClient(conn)
			break
		}

		if messageType == websocket.TextMessage {
			var clientMsg map[string]interface{}
			if err := json.Unmarshal(message, &clientMsg); err != nil {
				continue
			}

			msgType, ok := clientMsg["type"].(string)
			if !ok {
				continue
			}

			switch msgType {
			case "get_rooms":
				client.SendEvent(game.EventMessage{
					Type: "room_list",
					Data: s.gameManager.ListRooms(),
				})

			case "ping":
				client.SendEvent(game.EventMessage{Type: "pong"})
			}
		}
	}
}
