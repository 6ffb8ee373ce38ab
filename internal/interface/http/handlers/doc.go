// Package handlers contains the gin middleware and health checks shared by
// the HTTP server.
//
// # Health Checks
//
// Checks are registered by name and run in parallel, each with its own
// timeout:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("postgres", handlers.NewPingCheck(conn))
//	checker.AddCheck("redis", handlers.NewPingCheck(cache))
//
//	status := checker.Check(ctx)
//
// # Middleware
//
// The middleware are plain gin.HandlerFunc values. The server installs
// them in this order:
//
//	router.Use(
//	    handlers.Recovery(log),
//	    handlers.RequestID(log),
//	    handlers.AccessLog(log),
//	    handlers.SecurityHeaders(),
//	    handlers.CORS(origins),
//	    handlers.RateLimit(120, time.Minute),
//	    handlers.BodyLimit(1<<20),
//	)
package handlers
