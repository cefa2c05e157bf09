package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"designdeck/core"
	"designdeck/handlers/api/designs"
	"designdeck/handlers/relay"
	"designdeck/handlers/socketio"
	authMiddleware "designdeck/middleware"
	"designdeck/stores"
)

func setupRouter(store core.DesignStore, hub *relay.Hub) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "Origin", "Host", "Connection", "Accept-Encoding", "Accept-Language", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api/v2/designs", func(r chi.Router) {
		// Reads stay open so an editor can reconcile without credentials;
		// mutations require a bearer token when JWT_SECRET is set.
		r.Get("/", designs.HandleList(store))
		r.Get("/{id}", designs.HandleGet(store))

		r.Group(func(r chi.Router) {
			if os.Getenv("JWT_SECRET") != "" {
				r.Use(authMiddleware.AuthJWT)
			}
			r.Post("/", designs.HandleCreate(store))
			r.Put("/{id}", designs.HandleSave(store))
			r.Delete("/{id}", designs.HandleDelete(store))
		})
	})

	r.Get("/api/v2/rooms", func(w http.ResponseWriter, req *http.Request) {
		occupancy := hub.Occupancy()
		for room, n := range socketio.ActiveRooms() {
			occupancy[room] += n
		}
		render.JSON(w, req, occupancy)
	})

	r.Get("/ws", relay.ServeWS(hub))

	return r
}

func waitForShutdown(srv *http.Server) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-signals

	logrus.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("Graceful shutdown failed")
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	listenAddress := flag.String("listen", ":3002", "The address to listen on.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	store := stores.GetStore()
	hub := relay.NewHub()

	r := setupRouter(store, hub)

	io := socketio.NewServer()
	r.Mount("/socket.io/", io.ServeHandler(nil))

	srv := &http.Server{Addr: *listenAddress, Handler: r}

	logrus.WithField("addr", *listenAddress).Info("starting server")
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	waitForShutdown(srv)
	io.Close(nil)
}
