package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/txsociety/ton-agent/internal/config"
	"github.com/txsociety/ton-agent/pkg/agent"
	"github.com/txsociety/ton-agent/pkg/api"
	"github.com/txsociety/ton-agent/pkg/blockchain"
	"github.com/txsociety/ton-agent/pkg/broker"
	"github.com/txsociety/ton-agent/pkg/db"
	"github.com/txsociety/ton-agent/pkg/dex"
	"github.com/txsociety/ton-agent/pkg/jetton"
	"github.com/txsociety/ton-agent/pkg/notifier"
	"github.com/txsociety/ton-agent/pkg/reconciler"
	"github.com/txsociety/ton-agent/pkg/txn"
	"github.com/txsociety/ton-agent/pkg/webhook"
)

var Version = "dev"

func main() {
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})))
	slog.Info("running ton agent", "version", Version, "log level", cfg.LogLevel.String())
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	key, err := cfg.PrivateKey()
	if err != nil {
		slog.Error("wallet key", "error", err)
		os.Exit(1)
	}
	minterCode, walletCode, err := cfg.Codes()
	if err != nil {
		slog.Error("contract codes", "error", err)
		os.Exit(1)
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	wg := new(sync.WaitGroup)

	var dbClient *db.Connection
	if len(cfg.PostgresURI) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		dbClient, err = db.New(ctx, cfg.PostgresURI)
		cancel()
		if err != nil {
			slog.Error("db connection", "error", err)
			os.Exit(1)
		}
		defer dbClient.Close()
	} else {
		slog.Warn("POSTGRES_URI is not set, operations are not journaled")
	}

	ctx, cancel := context.WithCancel(context.Background())

	bcClient, err := blockchain.New(cfg.LiteServers, cfg.EmulateGetMethods)
	if err != nil {
		slog.Error("blockchain connection", "error", err)
		os.Exit(1)
	}
	if dbClient != nil {
		bcClient.RunBlockWatcher(ctx, dbClient, wg)
	} else {
		bcClient.RunBlockWatcher(ctx, nil, wg)
	}

	var locker txn.Locker
	if len(cfg.RedisAddr) > 0 {
		ctx1, cancel1 := context.WithTimeout(ctx, 10*time.Second)
		locker, err = txn.NewRedisLocker(ctx1, txn.RedisLockerConfig{
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		cancel1()
		if err != nil {
			slog.Error("redis connection", "error", err)
			os.Exit(1)
		}
	}

	var journal agent.Journal
	if dbClient != nil {
		journal = dbClient
	}
	protocolCfg := txn.Config{
		TTL:          cfg.TxTTL,
		PollInterval: cfg.PollInterval,
		MaxPolls:     cfg.MaxPolls,
		EffectPolls:  cfg.EffectPolls,
		Retry:        txn.RetryConfig{Attempts: cfg.RetryAttempts},
	}
	ctx1, cancel1 := context.WithTimeout(ctx, 60*time.Second)
	ag, err := agent.New(ctx1, bcClient, agent.Options{
		Key:           key,
		WalletAddress: cfg.WalletAddress,
		Protocol:      protocolCfg,
		Locker:        locker,
		Journal:       journal,
		Codes:         jetton.Codes{Minter: minterCode, Wallet: walletCode},
		Registry:      cfg.Registry,
		Dex:           dex.DefaultConfig(),
	})
	cancel1()
	if err != nil {
		slog.Error("agent creation", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := ag.Close(); err != nil {
			slog.Error("agent close", "error", err)
		}
	}()

	if dbClient != nil {
		reconciler.New(ag.Protocol(), dbClient, reconciler.DefaultConfig()).Run(ctx, wg)

		var senders []notifier.Sender
		if len(cfg.WebhookEndpoint) > 0 {
			wh, err := webhook.NewClient(cfg.WebhookEndpoint)
			if err != nil {
				slog.Error("webhook connection", "error", err)
				os.Exit(1)
			}
			senders = append(senders, wh)
		}
		if len(cfg.AMQPURL) > 0 {
			publisher, err := broker.New(broker.Config{URL: cfg.AMQPURL, Queue: cfg.AMQPQueue, Durable: true})
			if err != nil {
				slog.Error("amqp connection", "error", err)
				os.Exit(1)
			}
			defer publisher.Close()
			senders = append(senders, publisher)
		}
		notifier.New(dbClient, senders...).Run(ctx, wg)
	}

	mux := http.NewServeMux()
	var handler *api.Handler
	if dbClient != nil {
		handler = api.NewHandler(ag.Wallet(), dbClient, ag.Jettons(), ag.Market(), ag.Listings(), ag.Dex())
	} else {
		handler = api.NewHandler(ag.Wallet(), nil, ag.Jettons(), ag.Market(), ag.Listings(), ag.Dex())
	}
	api.RegisterHandlers(mux, handler, cfg.Token)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%v", cfg.Port),
		Handler: mux,
	}
	go func() {
		slog.Info("running api server", "port", cfg.Port, "wallet", ag.Wallet().ToRaw())
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("listen and serve", "error", err)
			os.Exit(1)
		}
	}()

	sig := <-ch
	slog.Info("shut down", "signal", sig.String())
	ctx2, cancel2 := context.WithTimeout(context.Background(), 30*time.Second)
	if err := srv.Shutdown(ctx2); err != nil {
		slog.Error("server shutdown", "error", err)
	}
	cancel2()
	slog.Info("api stopped")
	cancel()
	wg.Wait()
}
