package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/pool-service/internal/auth"
	"github.com/ukydev/pool-service/internal/config"
	"github.com/ukydev/pool-service/internal/db"
	"github.com/ukydev/pool-service/internal/events"
	"github.com/ukydev/pool-service/internal/handlers"
	"github.com/ukydev/pool-service/internal/models"
	"github.com/ukydev/pool-service/internal/weather"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.WithError(err).Fatal("Server stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.Logger.ConfigureLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := db.ConnectMongo(ctx, cfg.Mongo.URI)
	if err != nil {
		return fmt.Errorf("connect to MongoDB: %w", err)
	}
	log.WithField("database", cfg.Mongo.Database).Info("Connected to MongoDB")

	store := db.NewStore(ctx, client, cfg.Mongo.Database)
	defer func() {
		if err := store.Disconnect(context.Background()); err != nil {
			log.WithError(err).Warn("Failed to disconnect from MongoDB")
		}
	}()

	if err := store.EnsureIndexes(ctx); err != nil {
		return err
	}

	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err := bootstrapAdmin(ctx, store.Technicians, authService, cfg.Seed, os.Stderr); err != nil {
		return err
	}

	publisher := events.New(events.MQTTConfig{
		Broker:      cfg.MQTT.Broker,
		ClientID:    cfg.MQTT.ClientID,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
	})
	defer publisher.Close()

	router := handlers.NewRouter(handlers.Dependencies{
		Auth:           authService,
		Clients:        store.Clients,
		Pools:          store.Pools,
		Technicians:    store.Technicians,
		Visits:         store.Visits,
		FollowUps:      store.FollowUps,
		Billing:        store.Billing,
		Inventory:      store.Inventory,
		RouteStatus:    store.RouteStatus,
		Tx:             store.Tx,
		Publisher:      publisher,
		Weather:        weather.NewClient(cfg.Weather.APIKey, cfg.Weather.BaseURL, cfg.Weather.Timeout),
		WeatherCity:    cfg.Weather.City,
		Ping:           func(ctx context.Context) error { return client.Ping(ctx, nil) },
		Clock:          handlers.SystemClock(cfg.Server.Location()),
		LoginRateLimit: cfg.Server.LoginRateLimit,
		TrustProxy:     cfg.Server.TrustProxy,
	})

	server := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("address", server.Addr).Info("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		log.Info("Server shutting down")
		sdCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(sdCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Server stopped")
	return nil
}

// bootstrapAdmin creates the first admin account when no technician exists.
// Without a configured password a random one is generated and written to
// out once; it never reaches the log.
func bootstrapAdmin(ctx context.Context, technicians db.TechnicianCollection, authService *auth.Service, seed config.Seed, out io.Writer) error {
	n, err := technicians.CountTechnicians(ctx)
	if err != nil {
		return fmt.Errorf("count technicians: %w", err)
	}
	if n > 0 {
		return nil
	}

	password := seed.AdminPassword
	generated := password == ""
	if generated {
		password = uuid.NewString()
	}
	hash, err := authService.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	admin := &models.Technician{
		Name:         "Administrator",
		Email:        seed.AdminEmail,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
	}
	if err := technicians.InsertTechnician(ctx, admin); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	log.WithFields(log.Fields{"email": admin.Email, "generated_password": generated}).Warn("Created initial admin account")
	if generated {
		if _, err := fmt.Fprintf(out, "Initial admin password for %s: %s\n", admin.Email, password); err != nil {
			return fmt.Errorf("write admin password: %w", err)
		}
	}
	return nil
}
