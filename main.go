package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"rueda/admin"
	"rueda/agenda"
	"rueda/allocation"
	"rueda/booking"
	"rueda/config"
	"rueda/db"
	"rueda/feed"
	"rueda/middleware"
	"rueda/models"
	"rueda/mq"
	"rueda/notify"
	"rueda/ratelim"
	"rueda/rdx"
	"rueda/routes"
	"rueda/store"
	"rueda/tickets"
)

// securityHeaders applies a set of recommended HTTP security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs each request method, path, remote address, and duration.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debugf("[HTTP] %s %s from %s in %v", r.Method, r.URL.Path, r.RemoteAddr, time.Since(start))
	})
}

// Index is a simple health check handler.
func Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	fmt.Fprint(w, "200")
}

// app is everything the server holds open.
type app struct {
	stores  store.Stores
	broker  feed.Broker
	hub     *feed.Hub
	sw      agenda.Switch
	mongo   *db.DB
	redis   *redis.Client
	booking *booking.Handler
	admin   *admin.Handler
}

func (a *app) close(ctx context.Context) {
	if a.mongo != nil {
		if err := a.mongo.Close(ctx); err != nil {
			log.Warnf("[Main] close mongo: %v", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Warnf("[Main] close redis: %v", err)
		}
	}
}

// build connects the backends cfg asks for and wires the handlers.
func build(ctx context.Context, cfg config.Server) (*app, error) {
	a := &app{hub: feed.NewHub(0), sw: &agenda.Flag{}}
	go a.hub.Run()
	a.broker = a.hub

	if cfg.RedisAddr != "" {
		rdb, err := rdx.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		a.redis = rdb
		a.broker = mq.NewBroker(rdb, 0)
		a.sw = rdx.NewSwitch(rdb)
	}

	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Warn("[Main] using the in-memory store; data is lost on restart")
		a.stores = store.NewMemory(a.broker).Stores()
	default:
		d, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		a.mongo = d
		if err := d.EnsureIndexes(ctx); err != nil {
			a.close(ctx)
			return nil, err
		}
		a.stores = d.Stores()
		if cfg.WatchChangeStreams {
			go func() {
				if err := d.Watch(ctx, a.broker); err != nil {
					log.Errorf("[Main] change stream stopped: %v", err)
				}
			}()
		}
	}

	signer, err := tickets.NewSigner(cfg.TicketSecret)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	retry := cfg.RetryPolicy()
	sink := notify.Fanout{notify.NewInbox(a.stores.Notifications, a.broker), notify.Log}
	sessions := allocation.NewSessions(a.stores.Config, func(ac models.AgendaConfig) *allocation.Engine {
		return allocation.New(a.stores, ac,
			allocation.WithSink(sink),
			allocation.WithMaxAttempts(cfg.AllocMaxAttempts),
			allocation.WithRetryPolicy(retry))
	})
	generator := agenda.NewGenerator(a.stores, agenda.WithSwitch(a.sw), agenda.WithRetryPolicy(retry))

	a.booking = booking.NewHandler(sessions, a.stores, a.sw, signer, a.broker)
	a.admin = admin.NewHandler(sessions, a.stores, generator, a.sw, signer)

	if _, err := sessions.Engine(ctx); errors.Is(err, store.ErrConfigMissing) {
		log.Info("[Main] no agenda configured yet")
	} else if err != nil {
		log.Warnf("[Main] %v", err)
	}
	return a, nil
}

func setupRouter(a *app, rateLimiter *ratelim.RateLimiter, auth *middleware.Authenticator) *httprouter.Router {
	router := httprouter.New()
	router.GET("/health", Index)
	routes.RoutesWrapper(router, rateLimiter, auth, a.booking, a.admin)
	return router
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Main] %v", err)
	}
	log.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg)
	if err != nil {
		log.Fatalf("[Main] startup: %v", err)
	}

	rateLimiter := ratelim.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go rateLimiter.Run(ctx)

	router := setupRouter(a, rateLimiter, middleware.NewAuthenticator(cfg.JWTSecret))

	// apply middleware: CORS → security headers → logging → router
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(router)

	server := &http.Server{
		Addr:              cfg.Port,
		Handler:           loggingMiddleware(securityHeaders(corsHandler)),
		ReadTimeout:       7 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	// websockets are hijacked, so Shutdown does not wait for them
	server.RegisterOnShutdown(func() {
		log.Info("[Main] stopping feed hub")
		a.hub.Stop()
	})

	go func() {
		log.Infof("[Main] listening on %s (store: %s)", cfg.Port, cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[Main] ListenAndServe: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("[Main] shutdown signal received; shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("[Main] graceful shutdown failed: %v", err)
	}
	a.close(shutdownCtx)
	log.Info("[Main] server stopped cleanly")
}
