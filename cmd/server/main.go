package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"realtalk/auth"
	"realtalk/contract"
	"realtalk/internal"
	"realtalk/moderation"
	"realtalk/observability"
	"realtalk/presence"
	"realtalk/ratelimit"
	"realtalk/repositories"
	"realtalk/runtime"
	"realtalk/runtime/workers"
	"realtalk/server"
	"realtalk/services"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	os.Exit(run())
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for background workers.
func run() int {
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return exitConfig
	}
	maskChar, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return exitConfig
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	db, err := badger.Open(badger.DefaultOptions(config.BadgerPath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		log.Error("Database opening failed", "error", err)
		return exitRuntime
	}
	// Defer will be executed before run() returns its code to main()
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	words, err := moderation.LoadWordList()
	if err != nil {
		log.Error("Failed to load moderation word lists", "error", err)
		return exitRuntime
	}
	censor, err := moderation.NewCensor(words.Words, maskChar)
	if err != nil {
		log.Error("Failed to build censor", "error", err)
		return exitRuntime
	}
	log.Info("Moderation ready", "languages", words.Languages, "words", len(words.Words))

	messageRepository := repositories.NewMessageRepository(db, log)
	roomRepository := repositories.NewRoomRepository(db, log)
	banRepository := repositories.NewBanRepository(db, log)

	clock := contract.SystemClock{}
	gate := moderation.NewGate(banRepository)
	limiter := ratelimit.NewLimiter(config.SendCooldown, config.RateWindow, config.RateLimit)
	tracker := presence.NewTracker(config.PresenceTTL)
	counters := observability.NewCounters()

	supervisor := workers.NewSupervisor(log)
	registry := runtime.NewRegistry()
	orchestrator := runtime.NewOrchestrator(
		log, clock, supervisor, registry,
		gate, &censor, limiter, tracker, messageRepository,
		config.MaxMessageLength, config.BufferSize, config.SinkTimeout,
	)
	orchestrator.AddSinks(observability.NewEventCounterSink(counters))
	orchestrator.AddWorkers(
		workers.NewCompactionWorker(log, tracker, limiter, clock,
			config.CompactionInterval, config.RateIdleFor),
		workers.NewHealthMonitorWorker(log, counters, config.HealthInterval),
	)

	// Rooms survive restarts: every known room gets its worker back
	// before the first client connects.
	rooms, err := roomRepository.List()
	if err != nil {
		log.Error("Failed to list rooms", "error", err)
		return exitRuntime
	}
	for _, room := range rooms {
		if err := orchestrator.RegisterRoom(room); err != nil {
			log.Error("Failed to register room", "room", room.ID, "error", err)
			return exitRuntime
		}
	}
	log.Info("Rooms restored", "count", len(rooms))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go orchestrator.Start(ctx)
	defer orchestrator.Stop()

	chatService := services.NewChatService(log, clock, orchestrator, roomRepository,
		counters, config.RecentLimit)
	verifier := auth.NewVerifier([]byte(config.IdentitySecret))

	addr := net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
	srv := server.NewServer(log, chatService, verifier, addr)
	if err := srv.Run(ctx); err != nil {
		log.Error("Server stopped with error", "error", err)
		return exitRuntime
	}

	log.Info("Program stopped cleanly")
	return exitOK
}
