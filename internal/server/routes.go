package server

import (
	"os"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func (s *FiberServer) RegisterFiberRoutes() {
	// Apply CORS middleware
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Accept,Authorization,Content-Type,X-Admin-Key",
		AllowCredentials: false, // credentials require explicit origins
		MaxAge:           300,
	}))

	// Basic routes
	s.App.Get("/health", s.healthHandler)

	api := s.App.Group("/api/v1")

	// Room protocol routes
	rooms := api.Group("/rooms")
	rooms.Post("/", s.createGameHandler)
	rooms.Get("/", s.listRoomsHandler)
	rooms.Get("/:creator/:gameId", s.getRoomHandler)
	rooms.Post("/:creator/:gameId/join", s.joinGameHandler)
	rooms.Post("/:creator/:gameId/commit", s.makeCommitmentHandler)
	rooms.Post("/:creator/:gameId/reveal", s.revealChoiceHandler)
	rooms.Post("/:creator/:gameId/cancel", s.cancelGameHandler)
	rooms.Post("/:creator/:gameId/timeout", s.handleTimeoutHandler)
	rooms.Post("/:creator/:gameId/resolve", s.resolveManualHandler)

	// Commitment builder for thin clients
	api.Post("/commitment", s.buildCommitmentHandler)

	// Settled game history
	api.Get("/games/recent", s.recentGamesHandler)
	api.Get("/games/player/:userId", s.playerGamesHandler)

	// Balance ledger
	api.Get("/user/:userId/balance", s.getUserBalanceHandler)
	api.Post("/user/:userId/balance", s.setUserBalanceHandler)

	// Stats
	api.Get("/stats", s.statsHandler)

	// Admin routes
	admin := api.Group("/admin", s.adminGuard)
	admin.Post("/pause", s.pauseHandler)
	admin.Post("/unpause", s.unpauseHandler)
	admin.Post("/fees", s.updateFeesHandler)

	// WebSocket route
	s.App.Get("/ws", websocket.New(s.gameWebSocketHandler))
}

// adminGuard gates the admin group behind a shared key from the environment.
// An empty COINFLIP_ADMIN_KEY disables the admin surface entirely.
func (s *FiberServer) adminGuard(c *fiber.Ctx) error {
	key := os.Getenv("COINFLIP_ADMIN_KEY")
	if key == "" || c.Get("X-Admin-Key") != key {
		return c.Status(403).JSON(fiber.Map{
			"error": "admin key required",
		})
	}
	return c.Next()
}
