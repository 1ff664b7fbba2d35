package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"friendfinder-backend/internal/call"
	"friendfinder-backend/internal/database"
	bookingHandler "friendfinder-backend/internal/handler/http/booking"
	callHandler "friendfinder-backend/internal/handler/http/call"
	chatHandler "friendfinder-backend/internal/handler/http/chat"
	friendHandler "friendfinder-backend/internal/handler/http/friend"
	userHandler "friendfinder-backend/internal/handler/http/user"
	walletHandler "friendfinder-backend/internal/handler/http/wallet"
	wsHandler "friendfinder-backend/internal/handler/ws"
	"friendfinder-backend/internal/middleware"
	"friendfinder-backend/internal/payment"
	"friendfinder-backend/internal/repository/cassandra"
	"friendfinder-backend/internal/repository/cockroach"
	redisRepo "friendfinder-backend/internal/repository/redis"
	bookingService "friendfinder-backend/internal/service/booking"
	chatService "friendfinder-backend/internal/service/chat"
	friendService "friendfinder-backend/internal/service/friend"
	userService "friendfinder-backend/internal/service/user"
	walletService "friendfinder-backend/internal/service/wallet"
	"friendfinder-backend/internal/signaling"
	"friendfinder-backend/internal/store"
	"friendfinder-backend/pkg/env"
	"friendfinder-backend/pkg/jwt"
	"friendfinder-backend/pkg/logger"
	"friendfinder-backend/pkg/metrics"
)

func main() {
	_ = godotenv.Load()

	logger.InitDefault()
	defer logger.Sync()

	// 1. Setup JWT Manager
	jwtSecret := env.GetStringFromFile("JWT_SECRET", "")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
	if len(jwtSecret) < 32 {
		log.Fatal("JWT_SECRET must be at least 32 characters")
	}

	jwtManager := jwt.NewJWTManager(jwtSecret, 15*time.Minute, 30*24*time.Hour)

	// 2. Connect to Cassandra
	cassandraConfig := &database.CassandraConfig{
		Hosts:    []string{env.GetString("CASSANDRA_HOST", "localhost")},
		Keyspace: env.GetString("CASSANDRA_KEYSPACE", "friendfinder_ks"),
		Username: env.GetStringFromFile("CASSANDRA_USER", ""),
		Password: env.GetStringFromFile("CASSANDRA_PASSWORD", ""),
		Timeout:  10 * time.Second,
	}
	cassandraDB, err := database.NewCassandraDB(cassandraConfig)
	if err != nil {
		log.Fatalf("Failed to connect to Cassandra: %v", err)
	}
	defer cassandraDB.Close()

	log.Println("✅ Connected to Cassandra")

	// 3. Connect to Redis
	redisConfig := &database.RedisConfig{
		Host:     env.GetString("REDIS_HOST", "localhost"),
		Port:     env.GetInt("REDIS_PORT", 6379),
		Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
		DB:       0,
		PoolSize: 10,
	}
	redisDB, err := database.NewRedisDB(redisConfig)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisDB.Close()

	log.Println("✅ Connected to Redis")

	// 4. Connect to CockroachDB
	cockroachConfig := &database.CockroachConfig{
		Host:     env.GetString("COCKROACH_HOST", "localhost"),
		Port:     env.GetInt("COCKROACH_PORT", 26257),
		User:     env.GetString("COCKROACH_USER", "root"),
		Password: env.GetStringFromFile("COCKROACH_PASSWORD", ""),
		Database: env.GetString("COCKROACH_DATABASE", "friendfinder_db"),
		SSLMode:  env.GetString("COCKROACH_SSLMODE", "disable"),
	}
	cockroachDB, err := database.NewCockroachDB(context.Background(), cockroachConfig)
	if err != nil {
		log.Fatalf("Failed to connect to CockroachDB: %v", err)
	}
	defer cockroachDB.Close()

	log.Println("✅ Connected to CockroachDB")

	// 5. Metrics and realtime document store
	appMetrics := metrics.NewMetrics("friendfinder")
	docStore := store.NewRedisStore(redisDB.Client, appMetrics)
	channel := signaling.NewChannel(docStore)

	// 6. Repositories
	messageRepo := cassandra.NewMessageRepository(cassandraDB.Session)
	presenceRepo := redisRepo.NewPresenceRepository(redisDB)
	userRepo := cockroach.NewUserRepository(cockroachDB.Pool)
	friendRepo := cockroach.NewFriendRepository(cockroachDB.Pool)
	bookingRepo := cockroach.NewBookingRepository(cockroachDB.Pool)
	walletRepo := cockroach.NewWalletRepository(cockroachDB.Pool)

	// 7. Services
	gateway := payment.NewClient(payment.Config{
		BaseURL: env.GetString("PAYMENT_BASE_URL", "https://api.razorpay.com"),
		KeyID:   env.GetStringFromFile("PAYMENT_KEY_ID", ""),
		Secret:  env.GetStringFromFile("PAYMENT_SECRET", ""),
	})

	typingIdle := env.GetDuration("TYPING_IDLE", chatService.DefaultTypingIdle)
	chatSvc := chatService.NewService(messageRepo, docStore, appMetrics, typingIdle)
	defer chatSvc.Close()

	walletSvc := walletService.NewService(walletRepo, gateway)
	bookingSvc := bookingService.NewService(bookingRepo, userRepo, walletSvc, chatSvc)
	friendSvc := friendService.NewService(friendRepo)
	userSvc := userService.NewService(userRepo)

	// In-process calling is optional; most deployments only relay signaling
	// for browser peers and never negotiate media server side.
	var callManager *call.Manager
	if env.GetBool("CALL_MANAGER_ENABLED", false) {
		stunServers := call.DefaultSTUNServers
		transportFactory := func() (call.PeerTransport, error) {
			return call.NewPionTransport(stunServers)
		}
		callManager = call.NewManager(channel, call.PionMediaDevice{}, transportFactory, appMetrics)
		log.Println("✅ In-process call manager enabled")
	}

	// 8. Handlers
	userHdlr := userHandler.NewHandler(userSvc)
	friendHdlr := friendHandler.NewHandler(friendSvc)
	bookingHdlr := bookingHandler.NewHandler(bookingSvc)
	walletHdlr := walletHandler.NewHandler(walletSvc)
	chatHdlr := chatHandler.NewHandler(chatSvc, bookingSvc)
	callHdlr := callHandler.NewHandler(channel, callManager, bookingSvc)

	chatWS := wsHandler.NewChatHandler(chatSvc, bookingSvc, presenceRepo, appMetrics)
	signalingWS := wsHandler.NewSignalingHandler(channel, bookingSvc, appMetrics)

	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)
	rateLimiter := middleware.NewRateLimiter(redisDB.Client,
		env.GetInt("RATE_LIMIT_REQUESTS", 300), time.Minute)

	// 9. Setup Gin Router
	router := gin.New()
	router.SetTrustedProxies(nil)

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware())
	router.Use(prometheusMiddleware.Handler())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "friendfinder",
			"time":    time.Now().UTC(),
		})
	})

	router.GET("/metrics", middleware.MetricsHandler())

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtManager))
	v1.Use(rateLimiter.Middleware())
	{
		// Profiles
		v1.GET("/providers", userHdlr.Browse)
		v1.GET("/users/:id", userHdlr.Get)
		v1.PATCH("/users/me", userHdlr.UpdateMe)

		// Friend requests
		v1.POST("/friends/requests", friendHdlr.SendRequest)
		v1.POST("/friends/requests/:id/accept", friendHdlr.Accept)
		v1.POST("/friends/requests/:id/reject", friendHdlr.Reject)
		v1.DELETE("/friends/requests/:id", friendHdlr.Cancel)
		v1.GET("/friends/requests/incoming", friendHdlr.ListIncoming)
		v1.GET("/friends/requests/outgoing", friendHdlr.ListOutgoing)
		v1.GET("/friends", friendHdlr.ListFriends)

		// Bookings
		v1.POST("/bookings", bookingHdlr.Book)
		v1.GET("/bookings", bookingHdlr.List)
		v1.GET("/bookings/:id", bookingHdlr.Get)
		v1.DELETE("/bookings/:id", bookingHdlr.End)

		// Chat
		v1.POST("/bookings/:id/messages", chatHdlr.SendMessage)
		v1.GET("/bookings/:id/messages", chatHdlr.GetMessages)
		v1.POST("/bookings/:id/typing", chatHdlr.SetTyping)
		v1.GET("/bookings/:id/unread", chatHdlr.GetUnreadCount)

		// Call negotiation
		v1.GET("/bookings/:id/call", callHdlr.GetSession)
		v1.POST("/bookings/:id/call", callHdlr.Join)
		v1.DELETE("/bookings/:id/call", callHdlr.Hangup)

		// Wallet
		v1.GET("/wallet", walletHdlr.GetBalance)
		v1.POST("/wallet/topup", walletHdlr.TopUp)
		v1.GET("/wallet/transactions", walletHdlr.ListTransactions)

		// Realtime endpoints
		v1.GET("/ws/chat", chatWS.ServeWS)
		v1.GET("/ws/signaling", signalingWS.ServeWS)
	}

	// 10. Start server
	port := env.GetString("PORT", "8080")
	addr := fmt.Sprintf(":%s", port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Printf("🚀 FriendFinder backend starting on port %s\n", port)
		log.Println("📡 WebSocket endpoints: /v1/ws/chat, /v1/ws/signaling")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 11. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	if callManager != nil {
		callManager.Shutdown(shutdownCtx)
	}

	log.Println("Server exited")
}
