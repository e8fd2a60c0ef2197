package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"quickchat/internal/chat"
	"quickchat/internal/config"
	"quickchat/internal/db"
	"quickchat/internal/group"
	myMiddleware "quickchat/internal/middleware"
	"quickchat/internal/user"
)

// identityStore stitches the user and group repositories into the single
// relationship view the chat core consults.
type identityStore struct {
	users  *user.Repository
	groups *group.Repository
}

func (s *identityStore) GetBlocked(ctx context.Context, userID string) ([]string, error) {
	return s.users.GetBlocked(ctx, userID)
}

func (s *identityStore) GetGroup(ctx context.Context, groupID string) (*chat.Group, error) {
	g, err := s.groups.Get(ctx, groupID)
	if err != nil {
		if errors.Is(err, group.ErrNotFound) {
			return nil, chat.ErrNotFound
		}
		return nil, err
	}
	return &chat.Group{
		ID:         g.ID,
		AdminID:    g.AdminID,
		Members:    g.Members,
		Restricted: g.Restricted,
	}, nil
}

func main() {
	// 1. Config
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("❌ Bad configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	// 2. Connect to Database (Platform Layer)
	database, err := db.NewDatabase(cfg.DatabaseDSN)
	if err != nil {
		logrus.WithError(err).Fatal("❌ Failed to connect to DB")
	}
	logrus.Info("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(); err != nil {
		logrus.WithError(err).Fatal("❌ Migration failed")
	}
	logrus.Info("✅ Database Schema Initialized")

	// 3. Connect to Redis (Platform Layer)
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logrus.WithError(err).Fatal("❌ Failed to connect to Redis")
	}
	logrus.Info("✅ Connected to Redis")

	// 4. Initialize User & Group Features
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.JWTSecret, cfg.TokenTTL)
	userHandler := user.NewHandler(userService)

	groupRepo := group.NewRepository(database.Conn)
	groupHandler := group.NewHandler(groupRepo)

	// 5. Initialize the Chat Core
	identities := &identityStore{users: userRepo, groups: groupRepo}
	messageRepo := chat.NewRepository(database.Conn)

	registry := chat.NewRegistry(chat.NewBroadcaster())
	bus := chat.NewRedisBus(redisClient, cfg.EventChannel)
	go bus.Run(context.Background(), registry)

	router := chat.NewRouter(identities, messageRepo, bus)
	tracker := chat.NewTracker(identities, messageRepo, bus)
	chatHandler := chat.NewHandler(registry, router, tracker, messageRepo, userService)

	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	// 6. Define Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Post("/api/auth/signup", userHandler.Signup)
	r.Post("/api/auth/login", userHandler.Login)

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		r.Get("/api/auth/check", userHandler.Check)
		r.Get("/api/users/search", userHandler.SearchUsers)
		r.Post("/api/users/add-friend", userHandler.AddFriend)
		r.Post("/api/users/remove-friend", userHandler.RemoveFriend)
		r.Post("/api/users/block", userHandler.Block)
		r.Post("/api/users/unblock", userHandler.Unblock)

		r.Post("/api/groups/create", groupHandler.Create)
		r.Get("/api/groups", groupHandler.MyGroups)
		r.Get("/api/groups/{id}", groupHandler.GetGroup)
		r.Post("/api/groups/add-member", groupHandler.AddMember)
		r.Post("/api/groups/remove-member", groupHandler.RemoveMember)
		r.Post("/api/groups/toggle-permission", groupHandler.TogglePermission)
		r.Post("/api/groups/toggle-all-permissions", groupHandler.ToggleAllPermissions)

		// WebSocket (Real-time)
		r.Get("/ws", chatHandler.ServeWs)

		r.Get("/api/messages/users", chatHandler.Sidebar)
		r.Get("/api/messages/user/{id}", chatHandler.UserHistory)
		r.Get("/api/messages/group/{id}", chatHandler.GroupHistory)
		r.Post("/api/messages/send/user/{id}", chatHandler.SendToUser)
		r.Post("/api/messages/send/group/{id}", chatHandler.SendToGroup)
		r.Put("/api/messages/mark/{id}", chatHandler.MarkSeen)
		r.Delete("/api/messages/{id}", chatHandler.DeleteMessage)
	})

	logrus.WithField("addr", cfg.Addr).Info("🚀 Server starting")
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		logrus.WithError(err).Fatal("server exited")
	}
}
