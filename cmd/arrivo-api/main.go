// README: Entry point; loads config, wires sessions, position sources and sinks, serves HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arrivo/internal/config"
	httptransport "arrivo/internal/http"
	"arrivo/internal/http/handlers"
	"arrivo/internal/infra"
	"arrivo/internal/logging"
	"arrivo/internal/maps"
	"arrivo/internal/modules/location"
	"arrivo/internal/modules/savedlocation"
	"arrivo/internal/modules/session"
	"arrivo/internal/notify"
)

const shutdownTimeout = 15 * time.Second

func main() {
	log := logging.NewLogger("main")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	logging.Setup(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.WithError(err).Fatal("postgres")
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer redisClient.Close()

	hub := notify.NewHub(logging.NewLogger("stream"))
	sinks := notify.Multi{notify.NewLogNotifier(logging.NewLogger("alarm")), hub}

	if cfg.Firebase.ProjectID != "" {
		fcm, err := infra.NewMessaging(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			log.WithError(err).Fatal("firebase init")
		}
		sinks = append(sinks, notify.NewFCMNotifier(fcm, logging.NewLogger("fcm")))
	}

	if cfg.RabbitMQ.URL != "" {
		conn, err := infra.NewRabbitMQ(cfg.RabbitMQ.URL)
		if err != nil {
			log.WithError(err).Fatal("rabbitmq")
		}
		defer conn.Close()
		publisher, err := notify.NewRabbitPublisher(conn)
		if err != nil {
			log.WithError(err).Fatal("rabbitmq publisher")
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
	}

	sessions := session.NewManager(ctx, cfg.Alarm, sinks, logging.NewLogger("session"))
	defer sessions.Close()
	// An idle timeout of zero keeps sessions until they are deleted.
	go sessions.RunReaper(ctx, cfg.Session.IdleTimeout, cfg.Session.ReapEvery)

	locationStore := location.NewStore(dbPool, redisClient)
	locationSvc := location.NewService(sessions, locationStore, cfg.Location.SnapshotEvery, logging.NewLogger("location"))

	if cfg.MQTT.Broker != "" {
		client, err := infra.NewMQTT(cfg.MQTT.Broker, cfg.MQTT.ClientID)
		if err != nil {
			log.WithError(err).Fatal("mqtt")
		}
		defer client.Disconnect(250)
		subscriber := location.NewSubscriber(client, locationSvc, logging.NewLogger("mqtt"))
		if err := subscriber.Start(); err != nil {
			log.WithError(err).Fatal("mqtt subscribe")
		}
		defer func() { _ = subscriber.Stop() }()
	}

	savedStore := savedlocation.NewStore(dbPool)
	savedSvc := savedlocation.NewService(savedStore)

	var geocoder handlers.Geocoder
	if cfg.Maps.APIKey != "" {
		g, err := maps.NewGeocoder(cfg.Maps.APIKey, cfg.Maps.RequestsPerSecond)
		if err != nil {
			log.WithError(err).Fatal("maps client")
		}
		geocoder = g
	}

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Sessions:       sessions,
		Positions:      locationSvc,
		SavedLocations: savedSvc,
		Geocoder:       geocoder,
		Hub:            hub,
		Log:            logging.NewLogger("http"),
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.Routes()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		hub.Close()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("http shutdown")
		}
	}()

	log.WithField("addr", cfg.HTTP.Addr).Info("listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("http server")
	}
}
