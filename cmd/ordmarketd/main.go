// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"ordmarket/bitcoin"
	"ordmarket/bitcoin/broadcaster"
	"ordmarket/bitcoin/chain"
	"ordmarket/bitcoin/ord/oracle"
	"ordmarket/bitcoin/txbuilder"
	"ordmarket/marketplace"
	"ordmarket/server"
)

func main() {
	log := logrus.New()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("could not load .env file")
	}

	viper.AutomaticEnv()
	viper.SetDefault("HTTP_PORT", "8080")
	viper.SetDefault("DB_PATH", "ordmarket.db")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("NETWORK", string(bitcoin.NetworkMainnet))
	viper.SetDefault("EXPIRY_SWEEP_INTERVAL", "10m")

	level, err := logrus.ParseLevel(viper.GetString("LOG_LEVEL"))
	if err != nil {
		log.WithError(err).Warn("invalid LOG_LEVEL, using info")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	network, err := bitcoin.ParseNetwork(viper.GetString("NETWORK"))
	if err != nil {
		log.WithError(err).Fatal("invalid NETWORK")
	}

	store, err := marketplace.OpenStore(viper.GetString("DB_PATH"))
	if err != nil {
		log.WithError(err).Fatal("could not open listing store")
	}

	chainOpts := []chain.Option{}
	if urls := viper.GetStringSlice("CHAIN_ENDPOINTS"); len(urls) > 0 {
		chainOpts = append(chainOpts, chain.WithEndpoints(network, urls...))
	}
	chainClient := chain.New(chainOpts...)

	oracleOpts := []oracle.Option{}
	if urls := viper.GetStringSlice("ORD_ENDPOINTS"); len(urls) > 0 {
		oracleOpts = append(oracleOpts, oracle.WithEndpoints(network, urls...))
	}
	ordOracle := oracle.New(oracleOpts...)

	builder := txbuilder.NewBuilder(chainClient, ordOracle)
	publisher := broadcaster.New(chainClient, log)
	service := marketplace.NewService(store, builder, ordOracle, publisher, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runExpirySweep(ctx, service, viper.GetDuration("EXPIRY_SWEEP_INTERVAL"), log)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		cancel()
		os.Exit(0)
	}()

	srv := server.New(service, chainClient, log)
	if err = srv.Run(":" + viper.GetString("HTTP_PORT")); err != nil {
		log.WithError(err).Fatal("http server stopped")
	}
}

// runExpirySweep periodically expires listings past their validity window.
func runExpirySweep(ctx context.Context, service *marketplace.Service, interval time.Duration, log *logrus.Logger) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.WithField("interval", interval).Debug("listing expiry sweep started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			service.ExpireStale(ctx)
		}
	}
}
