package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"mappls-navigation/internal/api"
	"mappls-navigation/internal/cache"
	"mappls-navigation/internal/config"
	"mappls-navigation/internal/location"
	"mappls-navigation/internal/navigation"
	"mappls-navigation/internal/routing"
	"mappls-navigation/internal/subscriber"
	"mappls-navigation/internal/token"
	"mappls-navigation/internal/ws"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conf, err := config.New()
	if err != nil {
		return err
	}

	var loggerOpts slog.HandlerOptions
	if conf.Env == config.EnvDev {
		loggerOpts = slog.HandlerOptions{Level: slog.LevelDebug}
	}

	jsonHandler := slog.NewJSONHandler(os.Stdout, &loggerOpts)
	logger := slog.New(jsonHandler)

	style, err := config.LoadStyle(conf.StyleFile)
	if err != nil {
		return err
	}

	clock := navigation.SystemClock()

	redisClient := redis.NewClient(&redis.Options{Addr: net.JoinHostPort(conf.RedisHost, conf.RedisPort)})
	defer redisClient.Close()

	sessionCache := cache.NewRedisSessionCache(redisClient, conf.SessionTTL)
	routeStore := cache.NewRedisRouteStore(redisClient, conf.SessionTTL)
	router := routing.NewCachedRouter(
		routing.NewClient(conf.RoutingBaseURL),
		cache.NewRedisRouteCache(redisClient, conf.RouteCacheTTL),
		logger,
	)

	var provider navigation.LocationProvider
	if conf.LocationSource == config.SourceNMEA {
		gps, err := location.OpenNMEA(location.NMEAConfig{
			PortPath: conf.GPSPort,
			BaudRate: conf.GPSBaudRate,
		}, clock, logger)
		if err != nil {
			return err
		}
		defer gps.Close()
		go func() {
			if err := gps.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("gps reader stopped", "error", err)
			}
		}()
		provider = gps
	}

	wsManager := ws.NewManager(ctx, logger, ws.Dependencies{
		Sessions: sessionCache,
		Routes:   routeStore,
		Router:   router,
		Clock:    clock,
		Provider: provider,
	}, ws.Options{
		Controller: navigation.ControllerOptions{
			PushInterval: conf.PushInterval,
			SettleDelay:  conf.SettleDelay,
			Style:        style.Tracking,
			Push:         style.Push,
		},
		Watcher: navigation.WatcherOptions{
			RetryDelay: conf.RetryDelay,
			Timeout:    conf.LocationTimeout,
		},
		Costing: routing.CostingAuto,
	})
	go wsManager.Start()
	defer wsManager.Shutdown()

	sub := subscriber.NewSubscriber(logger, redisClient, conf.RedisRoutesChannel, routeStore, wsManager)
	go func() {
		if err := sub.Start(ctx); err != nil {
			logger.Error("subscriber stopped with error", "error", err)
		}
	}()

	tokens := token.NewBroker(token.Options{
		TokenURL:     conf.TokenURL,
		ClientID:     conf.ClientID,
		ClientSecret: conf.ClientSecret,
		RestAPIKey:   conf.RoutingKey,
		Timeout:      10 * time.Second,
	})

	server := api.NewServer(conf, wsManager, tokens, logger)
	if err := server.Start(ctx); err != nil {
		return err
	}

	return nil
}
