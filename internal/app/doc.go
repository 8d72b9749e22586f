// Package app wires the two Axis hosts out of the domain packages.
//
// # Key server
//
// KeyServer runs on the issuing side. It serves the aggregate registry at
// GET /keys.json with ETag revalidation, accepts first-use bindings from
// clients on POST /api/v1/bindings, and exposes the key management API under
// /api/v1/keys behind a bearer admin token:
//
//	rt, err := app.Bootstrap(app.BootstrapOptions{Service: "keyadmin", Telemetry: true})
//	srv, err := app.NewKeyServer(rt, manager)
//	err = srv.Run(ctx)
//
// # Session host
//
// Session runs on the validating side. It refuses to start unless the local
// activation is valid, then serves the license API on localhost, pushes every
// validation pass to websocket clients and revalidates on a fixed interval.
// When a pass finds the license invalid the session is terminated: clients
// receive a session:terminated message, the HTTP server shuts down and Run
// returns an error wrapping license.ErrSessionTerminated.
//
// # Shutdown
//
// Both hosts stop when their context is cancelled. Active requests get
// ServerConfig.ShutdownTimeout to complete.
package app
