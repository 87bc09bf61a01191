package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/account-service/internal/api/http/handlers"
	"github.com/spec-kit/account-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health *handlers.HealthHandler
	Users  *handlers.UsersHandler
	Gate   *auth.Gate
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/", cfg.Health.Root)
	app.Get("/health", cfg.Health.Plain)
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	users := app.Group("/user")
	users.Post("/register", cfg.Users.Register)
	users.Post("/login", cfg.Users.Login)
	users.Get("/logout", cfg.Users.Logout)

	users.Get("/getUser/:username", cfg.Gate.Handle, cfg.Users.GetUser)
	users.Put("/updateUser", cfg.Gate.Handle, cfg.Users.UpdateUser)
	users.Get("/getSuggestedUsers", cfg.Gate.Handle, cfg.Users.SuggestedUsers)
	users.Put("/followUser/:username", cfg.Gate.Handle, cfg.Users.Follow)
	users.Put("/unfollowUser/:username", cfg.Gate.Handle, cfg.Users.Unfollow)
}
