package main

import (
	"net/http"

	"github.com/raccoon-warez/cipherwave-relay/internal/handler"
	"github.com/raccoon-warez/cipherwave-relay/internal/metrics"
)

func setupRouter(
	proxyHandler *handler.ProxyHandler,
	adminHandler *handler.AdminHandler,
	collector *metrics.Collector,
	strategyName string,
) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/", proxyHandler)
	mux.HandleFunc("GET /metrics", collector.Handler(strategyName))
	adminHandler.Register(mux)

	return mux
}
