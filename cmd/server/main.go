package main // Entry point package

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/sp1d5r/ticket-exchange/internal/config"
	"github.com/sp1d5r/ticket-exchange/internal/database"
	"github.com/sp1d5r/ticket-exchange/internal/handler"
	"github.com/sp1d5r/ticket-exchange/internal/queue"
	"github.com/sp1d5r/ticket-exchange/internal/repository"
	"github.com/sp1d5r/ticket-exchange/internal/router"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env always wins

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient() // nil when Redis is absent; middleware degrades

	accounts := repository.NewAccountRepo(db)
	tokens := repository.NewTokenRepo(db)
	collections := repository.NewCollectionRepo(db)
	tickets := repository.NewTicketRepo(db)
	ledger := repository.NewLedgerRepo(db)
	listings := repository.NewListingRepo(db)

	// The exchange system account holds listed tickets and escrowed bids.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	exchangeID, err := accounts.EnsureExchangeAccount(ctx)
	cancel()
	if err != nil {
		log.Fatalf("exchange account: %v", err)
	}
	log.Printf("exchange account id=%d fee=%d%%", exchangeID, cfg.FeePercent)

	auth := handler.NewAuthHandler(cfg, accounts, tokens)
	wallet := handler.NewWalletHandler(ledger, accounts, exchangeID)
	collection := handler.NewCollectionHandler(cfg, collections, tickets, listings, ledger, exchangeID)
	ticket := handler.NewTicketHandler(tickets, collections, accounts)
	exchange := handler.NewExchangeHandler(cfg, listings, tickets, collections, ledger, exchangeID)

	go func() {
		if err := queue.StartTradeConsumer(); err != nil {
			log.Printf("trade consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, auth, cfg.JWTSecret)
	router.RegisterPublic(e, collection, ticket, exchange, rdb)
	router.RegisterMarket(e, cfg, wallet, collection, ticket, exchange, rdb)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
