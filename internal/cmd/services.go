package main

import (
	"github.com/jonboulle/clockwork"

	"github.com/tkytts/experimentServer/internal/catalog"
	"github.com/tkytts/experimentServer/internal/gateway"
	"github.com/tkytts/experimentServer/internal/session"
	"github.com/tkytts/experimentServer/internal/telemetry"
)

type Services struct {
	Catalog     *catalog.Catalog
	Sink        *telemetry.CSVSink
	Connections *gateway.ConnectionManager
	Router      *session.Router
	Handler     *gateway.Handler
}

func setupServices(config *Config) *Services {
	clock := clockwork.NewRealClock()

	// Catalog layer -> sink -> session router -> gateway
	cat := catalog.Load(config.CatalogPath)
	sink := telemetry.NewCSVSink(config.LogDir, clock)

	connections := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())

	sess := session.NewSession(config.MaxTime, config.PointsAwarded)
	router := session.NewRouter(sess, cat, sink, connections, clock)
	connections.SetDispatcher(router)

	handler := gateway.NewHandler(connections, cat, router)

	return &Services{
		Catalog:     cat,
		Sink:        sink,
		Connections: connections,
		Router:      router,
		Handler:     handler,
	}
}
