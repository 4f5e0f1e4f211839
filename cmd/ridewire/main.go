// Command ridewire runs the voice-triggered ride booking service: an HTTP
// API for account authentication and transcript webhooks, backed by a pool
// of per-user browser sessions.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/omilabs/ridewire/pkg/auth"
	"github.com/omilabs/ridewire/pkg/booking"
	"github.com/omilabs/ridewire/pkg/browser"
	"github.com/omilabs/ridewire/pkg/config"
	"github.com/omilabs/ridewire/pkg/detect"
	"github.com/omilabs/ridewire/pkg/locators"
	"github.com/omilabs/ridewire/pkg/logging"
	"github.com/omilabs/ridewire/pkg/server"
	"github.com/omilabs/ridewire/pkg/store"
)

const shutdownGrace = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ridewire: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.NewLogger("main")
	if err != nil {
		return err
	}
	defer log.Close()

	locs, err := locators.Load(cfg.SelectorsFile)
	if err != nil {
		return err
	}

	st, closeStore, err := newStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	driver := browser.NewPlaywrightDriver()
	if err := driver.Start(); err != nil {
		return fmt.Errorf("failed to start browser driver: %w", err)
	}

	poolLog, err := logging.NewLogger("pool")
	if err != nil {
		return err
	}
	defer poolLog.Close()
	pool := browser.NewPool(driver, cfg.Pool.TTL(), poolLog)

	authLog, err := logging.NewLogger("auth")
	if err != nil {
		return err
	}
	defer authLog.Close()
	authCtrl := auth.NewController(driver, st, cfg, locs, authLog)

	bookingLog, err := logging.NewLogger("booking")
	if err != nil {
		return err
	}
	defer bookingLog.Close()
	pipeline := booking.NewPipeline(pool, st, cfg, locs, bookingLog)

	detectLog, err := logging.NewLogger("detect")
	if err != nil {
		return err
	}
	defer detectLog.Close()
	extractor := detect.NewOpenAIExtractor("", cfg.Detect.Model)
	detector := detect.NewDetector(extractor, detect.NewStaticGeolocator(cfg.Detect.DefaultPickup), detectLog)

	srv := server.New(authCtrl, pipeline, detector, st, cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.ListenAndServe)

	// Age out idle pooled browsers.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.Pool.EvictInterval())
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := pool.EvictExpired(); n > 0 {
					log.Infof("evicted %d expired browser sessions", n)
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Infof("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnf("server shutdown: %v", err)
		}

		authCtrl.Shutdown()
		pool.Shutdown()
		return nil
	})

	log.Infof("ridewire started (run %s)", log.RunID())
	return g.Wait()
}

// newStore builds the configured persistence backend.
func newStore(cfg *config.Config) (store.Store, func(), error) {
	switch cfg.Store.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return store.NewRedisStore(client), func() { _ = client.Close() }, nil
	default:
		fs, err := store.NewFileStore(cfg.Store.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	}
}
