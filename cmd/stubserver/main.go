// Command stubserver is a self-contained development backend for the chat
// client: REST endpoints, a websocket hub and a sqlite message store. It
// mimics the production wire contract so the client can be exercised
// without the real deployment.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"daymoon-client/internal/auth"
	"daymoon-client/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	st, err := openStore(cfg.StubServer.DBPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	if err := os.MkdirAll(cfg.StubServer.UploadPath, 0o755); err != nil {
		log.Fatalf("create upload directory: %v", err)
	}

	if err := seedUsers(st, cfg.StubServer.SeedPassword); err != nil {
		log.Fatalf("seed users: %v", err)
	}

	blacklist := auth.NewMemoryTokenBlacklist()
	hub := NewHub()
	go hub.Run()

	h := &apiHandler{
		store:     st,
		hub:       hub,
		blacklist: blacklist,
		cfg:       cfg.StubServer,
		upload:    cfg.Upload,
	}

	r := newRouter(h, hub, st, cfg.Realtime)

	corsOptions := []gorillaHandlers.CORSOption{
		gorillaHandlers.AllowedOrigins(cfg.StubServer.CORS.AllowedOrigins),
		gorillaHandlers.AllowedMethods(cfg.StubServer.CORS.AllowedMethods),
		gorillaHandlers.AllowedHeaders(cfg.StubServer.CORS.AllowedHeaders),
		gorillaHandlers.MaxAge(cfg.StubServer.CORS.MaxAge),
	}
	if cfg.StubServer.CORS.AllowCredentials {
		corsOptions = append(corsOptions, gorillaHandlers.AllowCredentials())
	}
	corsHandler := gorillaHandlers.CORS(corsOptions...)(r)

	serverAddr := fmt.Sprintf("%s:%s", cfg.StubServer.Host, cfg.StubServer.Port)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      corsHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("stub server listening on %s", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutdown signal received, stopping stub server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("stub server stopped")
}

// newRouter wires the REST endpoints, the websocket upgrade and the
// static upload files.
func newRouter(h *apiHandler, hub *Hub, st *store, rtCfg config.RealtimeConfig) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)

	authMW := func(next http.HandlerFunc) http.Handler {
		return authMiddleware(next, h.cfg.JWTSecretKey, h.blacklist)
	}
	r.Handle("/auth/me", authMW(h.Me)).Methods(http.MethodGet)
	r.Handle("/auth/logout", authMW(h.Logout)).Methods(http.MethodPost)
	r.Handle("/chat/conversations", authMW(h.Conversations)).Methods(http.MethodGet)
	r.Handle("/chat/messages", authMW(h.Messages)).Methods(http.MethodPost)
	r.Handle("/chat/messages/send", authMW(h.Send)).Methods(http.MethodPost)
	r.Handle("/chat/upload", authMW(h.Upload)).Methods(http.MethodPost)

	r.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		serveWS(hub, st, rtCfg, w, r)
	})

	uploadDir := http.Dir(h.cfg.UploadPath)
	r.PathPrefix("/uploads/").Handler(http.StripPrefix("/uploads/", http.FileServer(uploadDir)))
	return r
}

// seedUsers creates two demo accounts on first run so the client has
// someone to talk to. Their password comes from configuration.
func seedUsers(st *store, password string) error {
	seeds := []struct{ name, email string }{
		{"Alice", "alice@example.com"},
		{"Bob", "bob@example.com"},
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	for _, seed := range seeds {
		_, err := st.GetUserByEmail(seed.email)
		if err == nil {
			continue
		}
		if !errors.Is(err, errNotFound) {
			return err
		}
		user, err := st.CreateUser(seed.name, seed.email, hash)
		if err != nil {
			return err
		}
		log.Printf("seeded user %s <%s> (id %s)", user.Name, user.Email, user.ID)
	}
	return nil
}
