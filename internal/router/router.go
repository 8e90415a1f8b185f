// Package router wires HTTP routes to their handlers and middleware.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/sp1d5r/ticket-exchange/internal/config"
	"github.com/sp1d5r/ticket-exchange/internal/handler"
	"github.com/sp1d5r/ticket-exchange/internal/middleware"
)

// RegisterRoutes registers routes that require no authentication.
// Currently it exposes only the health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the authentication routes. Unauthenticated
// operations live under /v1/auth, the protected /v1/me uses the JWT
// middleware.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Refresh rotates the refresh token; logout revokes one session.
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole("TRADER"))
	auth.GET("/me", a.Me)
}

// RegisterPublic registers the unauthenticated browse endpoints: collection
// listings, individual tickets and highest bids. Successful GETs are
// response-cached when Redis is configured; these answers are identical for
// every caller so a shared cache is safe.
func RegisterPublic(e *echo.Echo, col *handler.CollectionHandler, t *handler.TicketHandler, x *handler.ExchangeHandler, rdb *redis.Client) {
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

	pub := e.Group("/public")
	// Browse endpoints are cacheable; per-ticket and bid state is not,
	// it changes under active auctions.
	pub.GET("/collections", col.List, cache)
	pub.GET("/collections/:id", col.Get, cache)
	pub.GET("/collections/:id/listings", col.ActiveListings, cache)
	pub.GET("/collections/:id/balance", t.BalanceOf)
	pub.GET("/collections/:id/tickets/:serial", t.Get)
	pub.GET("/collections/:id/tickets/:serial/bid", x.HighestBid)
}

// RegisterMarket registers the authenticated trading endpoints: wallet,
// collection management, primary sale, ticket operations and the resale
// exchange. Every route requires a TRADER access token and shares one
// Redis token bucket.
func RegisterMarket(e *echo.Echo, cfg config.Config, w *handler.WalletHandler, col *handler.CollectionHandler, t *handler.TicketHandler, x *handler.ExchangeHandler, rdb *redis.Client) {
	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(cfg.JWTSecret))
	auth.Use(middleware.RequireRole("TRADER"))
	auth.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	// Wallet (value ledger).
	auth.GET("/wallet", w.Balance)
	auth.POST("/wallet/deposit", w.Deposit)
	auth.POST("/wallet/approve", w.Approve)
	auth.GET("/wallet/allowance", w.Allowance)
	auth.POST("/wallet/transfer", w.Transfer)

	// Collections and primary sale.
	auth.POST("/collections", col.Create)
	auth.POST("/collections/:id/purchase", col.Purchase)

	// Per-ticket registry operations.
	auth.GET("/tickets", t.Mine)
	auth.POST("/collections/:id/tickets/:serial/transfer", t.Transfer)
	auth.POST("/collections/:id/tickets/:serial/approve", t.Approve)
	auth.POST("/collections/:id/tickets/:serial/use", t.SetUsed)
	auth.PATCH("/collections/:id/tickets/:serial/name", t.UpdateHolderName)

	// Resale exchange.
	auth.POST("/exchange/list", x.List)
	auth.POST("/exchange/bid", x.Bid)
	auth.POST("/exchange/accept", x.Accept)
	auth.POST("/exchange/delist", x.Delist)
}
