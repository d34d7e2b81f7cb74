/*
Package monitoring provides Prometheus metrics for the package backend.

Metrics live on a private registry so several instances (tests, embedded
servers) never collide on registration.

# Tracked

- HTTP requests by route template and status
- install/uninstall/archive operations by kind and outcome
- in-flight guard rejections and discovery pauses
- backend calls by gRPC code
- provisioning errors by step
- listener count and dropped notifications

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "library", "install")
	err := run()
	timer.Stop(err)
*/
package monitoring
