package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"fleet-monitor/livemap/internal/config"
	"fleet-monitor/livemap/internal/connection"
	"fleet-monitor/livemap/internal/entity"
	"fleet-monitor/livemap/internal/ledger"
	"fleet-monitor/livemap/internal/notify"
	"fleet-monitor/livemap/internal/pipeline"
	"fleet-monitor/livemap/internal/store"
	httptransport "fleet-monitor/livemap/internal/transport/http"
	mqtttransport "fleet-monitor/livemap/internal/transport/mqtt"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using system environment variables")
	}
	cfg := config.Load()
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Optional backends. Anything unconfigured or unreachable is logged
	// and its sink left disabled.
	var redisStore *store.RedisStore
	if cfg.RedisAddr != "" {
		rs, err := store.NewRedisStore(ctx, cfg)
		if err != nil {
			log.Printf("redis disabled: %v", err)
		} else {
			redisStore = rs
			defer rs.Close()
		}
	}

	var pg *store.PostgresStore
	if cfg.PostgresDSN != "" {
		p, err := store.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Printf("postgres disabled: %v", err)
		} else {
			pg = p
			defer p.Close()
		}
	}

	var publishers []pipeline.AlertPublisher
	if cfg.RabbitMQURL != "" {
		rp, err := notify.NewRabbitPublisher(cfg.RabbitMQURL)
		if err != nil {
			log.Printf("rabbitmq publisher disabled: %v", err)
		} else {
			publishers = append(publishers, rp)
			defer rp.Close()
		}
	}
	if cfg.NATSURL != "" {
		np, err := notify.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			log.Printf("nats publisher disabled: %v", err)
		} else {
			publishers = append(publishers, np)
			defer np.Close()
		}
	}

	stateSize, alertSize := cfg.StateChannelSize, cfg.AlertChannelSize
	if redisStore == nil {
		stateSize = 0
	}
	if len(publishers) == 0 {
		alertSize = 0
	}
	disp := pipeline.NewDispatcher(stateSize, alertSize, cfg.HubChannelSize)

	engine := pipeline.NewEngine(
		entity.NewStore(cfg.TrackCapacity, nil),
		ledger.New(cfg.AlertCapacity),
		connection.NewController(cfg.LivenessWindow, nil),
		disp,
		nil,
	)

	source, closeSource := poiSource(ctx, cfg, pg)
	defer closeSource()

	var wg sync.WaitGroup
	spawn := func(run func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(ctx)
		}()
	}

	if disp.StateChan != nil {
		spawn(pipeline.NewStateWriter(disp.StateChan, engine, redisStore).Run)
	}
	if disp.AlertChan != nil {
		var fwd *pipeline.AlertForwarder
		if redisStore != nil {
			fwd = pipeline.NewAlertForwarder(disp.AlertChan, redisStore, publishers...)
		} else {
			fwd = pipeline.NewAlertForwarder(disp.AlertChan, nil, publishers...)
		}
		spawn(fwd.Run)
	}
	if source != nil {
		spawn(pipeline.NewResyncer(engine, source, cfg.POIFetchTimeout).Run)
	}
	spawn(func(ctx context.Context) { engine.RunLiveness(ctx, time.Second) })

	hub := httptransport.NewHub(disp.HubChan, engine)
	spawn(hub.Run)

	var handler *httptransport.Handler
	if pg != nil {
		handler = httptransport.NewHandler(engine, pg, cfg.ActiveWindow)
	} else {
		handler = httptransport.NewHandler(engine, nil, cfg.ActiveWindow)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           httptransport.NewRouter(handler, hub),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("http listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	sub := mqtttransport.NewSubscriber(engine)
	if err := sub.Start(ctx, cfg.MQTTBroker, cfg.MQTTClientID); err != nil {
		log.Fatalf("mqtt: %v", err)
	}

	<-ctx.Done()
	log.Println("shutting down")

	sub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}

	wg.Wait()
}

// poiSource picks the tollbooth snapshot source named by POI_SOURCE.
func poiSource(ctx context.Context, cfg *config.Config, pg *store.PostgresStore) (pipeline.POISource, func()) {
	noop := func() {}

	switch cfg.POISource {
	case "postgres":
		if pg == nil {
			log.Printf("POI_SOURCE=postgres but postgres is unavailable, no tollbooth source")
			return nil, noop
		}
		return pg, noop

	case "sqlite":
		s, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			log.Printf("sqlite tollbooth source disabled: %v", err)
			return nil, noop
		}
		return s, func() { s.Close() }

	case "file", "":
		return store.NewFileSource(cfg.TollboothsFile), noop
	}

	log.Printf("unknown POI_SOURCE %q, no tollbooth source", cfg.POISource)
	return nil, noop
}
