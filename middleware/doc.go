// Package middleware provides optional named middleware for cowboy routers:
// Prometheus telemetry, OpenTelemetry tracing, response caching, and database
// pool wiring. Importing the package registers each under its name, so
// applications opt in with a blank import and reference them via
// cowboy.Named:
//
//	import _ "github.com/MomsFriendlyDevCo/Cowboy/middleware"
//
//	rt.Use(cowboy.Named("telemetry"))
//	rt.Get("/widgets/:id", cowboy.Named("cache"), showWidget)
package middleware
