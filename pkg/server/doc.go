// Package server provides the operations HTTP listener.
//
// It serves three read-only endpoints through gorilla/mux, wrapped in the
// gorilla/handlers access log:
//
//   - / - version as JSON
//   - /healthz - database connectivity
//   - /metrics - Prometheus collectors
//
// Record operations are not exposed over HTTP.
//
//	srv := server.NewServer(":9090", backend, m.Handler())
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
