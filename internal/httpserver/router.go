package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"huddle/internal/changefeed"
	"huddle/internal/config"
	"huddle/internal/objectstore"
	"huddle/internal/security"
	"huddle/internal/service"
	"huddle/internal/store/sqlstore"
	"huddle/internal/ws"

	_ "huddle/docs"

	httpSwagger "github.com/swaggo/http-swagger"
)

// NewRouter constructs the main HTTP router and wires routes, services, and middleware.
// Mutations are published to publisher; realtime subscribers read from broker.
func NewRouter(
	cfg *config.Config,
	db *sqlstore.DB,
	hub *ws.Hub,
	broker *changefeed.Broker,
	publisher changefeed.Publisher,
	objects *objectstore.Store,
	tokenSvc *security.TokenService,
	passwordHasher *security.PasswordHasher,
	encryptor *security.Encryptor,
) http.Handler {
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Repositories
	userRepo := sqlstore.NewUserRepo(db)
	profileRepo := sqlstore.NewProfileRepo(db)
	groupRepo := sqlstore.NewGroupRepo(db)
	memberRepo := sqlstore.NewMembershipRepo(db)
	proposalRepo := sqlstore.NewProposalRepo(db)
	chatRepo := sqlstore.NewChatRepo(db)

	// Services
	authSvc := service.NewAuthService(userRepo, profileRepo, tokenSvc, passwordHasher)
	profileSvc := service.NewProfileService(profileRepo, publisher)
	groupSvc := service.NewGroupService(groupRepo, memberRepo, publisher)
	proposalSvc := service.NewProposalService(proposalRepo, sqlstore.NewVoteRepo(db), sqlstore.NewCommentRepo(db), groupRepo, memberRepo, publisher)
	eventSvc := service.NewEventService(sqlstore.NewEventRepo(db), sqlstore.NewAttendanceRepo(db), proposalRepo, groupRepo, memberRepo, publisher)
	chatSvc := service.NewChatService(chatRepo, groupRepo, memberRepo, userRepo, encryptor, publisher)
	msgSvc := service.NewMessageService(chatSvc, chatRepo, sqlstore.NewMessageRepo(db), encryptor, cfg.MaxMessagesPerChat, publisher)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": cfg.AppName, "version": "1.0.0", "docs": "/docs/index.html"})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy", "database": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":        "healthy",
			"realtime":      hub.Connections(),
			"subscriptions": broker.Subscribers(),
		})
	})

	// Swagger documentation
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"), //The url pointing to API definition
	))

	// Public objects
	r.Handle(objectstore.PublicPrefix+"*", objects.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		// Auth routes (no auth required)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", handleRegister(authSvc))
			r.Post("/login", handleLogin(authSvc))
		})

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(authSvc))

			r.Post("/auth/logout", handleLogout(authSvc, hub))
			r.Get("/auth/me", handleMe(profileSvc))

			r.Route("/profiles", func(r chi.Router) {
				r.Get("/", handleListProfiles(profileSvc))
				r.Patch("/me", handleUpdateMyProfile(profileSvc))
				r.Get("/{userID}", handleGetProfile(profileSvc))
			})

			r.Route("/groups", func(r chi.Router) {
				r.Get("/", handleListGroups(groupSvc))
				r.Post("/", handleCreateGroup(groupSvc))
				r.Post("/join", handleJoinGroup(groupSvc))
				r.Get("/{groupID}", handleGetGroup(groupSvc))
				r.Patch("/{groupID}", handleUpdateGroup(groupSvc))
				r.Post("/{groupID}/leave", handleLeaveGroup(groupSvc))
				r.Get("/{groupID}/members", handleListMembers(groupSvc))
				r.Delete("/{groupID}/members/{userID}", handleRemoveMember(groupSvc))
				r.Post("/{groupID}/members/{userID}/promote", handlePromoteMember(groupSvc))
				r.Post("/{groupID}/chat", handleEnsureGroupChat(chatSvc))
			})

			r.Route("/proposals", func(r chi.Router) {
				r.Get("/", handleListProposals(proposalSvc))
				r.Post("/", handleCreateProposal(proposalSvc))
				r.Get("/{proposalID}", handleGetProposal(proposalSvc))
				r.Patch("/{proposalID}", handleUpdateProposal(proposalSvc))
				r.Delete("/{proposalID}", handleDeleteProposal(proposalSvc))
				r.Post("/{proposalID}/status", handleSetProposalStatus(proposalSvc))
				r.Put("/{proposalID}/vote", handleCastVote(proposalSvc))
				r.Get("/{proposalID}/comments", handleListComments(proposalSvc))
				r.Post("/{proposalID}/comments", handleAddComment(proposalSvc))
				r.Post("/{proposalID}/event", handleCreateEventFromProposal(eventSvc))
			})

			r.Route("/events", func(r chi.Router) {
				r.Get("/", handleListEvents(eventSvc))
				r.Post("/", handleCreateEvent(eventSvc))
				r.Get("/{eventID}", handleGetEvent(eventSvc))
				r.Put("/{eventID}/attendance", handleSetAttendance(eventSvc))
			})

			r.Route("/chats", func(r chi.Router) {
				r.Get("/", handleListChats(chatSvc))
				r.Post("/direct", handleOpenDirectChat(chatSvc))
				r.Get("/{chatID}", handleGetChat(chatSvc))
				r.Get("/{chatID}/messages", handleListMessages(msgSvc))
				r.Post("/{chatID}/messages", handleSendMessage(msgSvc))
			})

			r.Mount("/storage", UploadRoutes(objects, cfg.MaxUploadBytes))
		})
	})

	// WebSocket endpoint
	r.Get("/realtime", ws.MakeHandler(hub, broker, authSvc, ws.ServiceAccess{Members: memberRepo, Chats: chatSvc}, cfg.CORSOrigins, nil))

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
