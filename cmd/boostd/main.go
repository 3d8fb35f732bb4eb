package main

import (
	"boost/internal/config"
	"boost/internal/infra/db"
	httpinfra "boost/internal/infra/http"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.FromEnv()

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	store, err := db.NewStore(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("failed to init store")
	}

	srv := httpinfra.NewServer(cfg, store)
	if err := srv.Run(); err != nil {
		logrus.WithError(err).Fatal("server exited")
	}
}
