// Package controller holds the HTTP middlewares shared by the metrics server
// and the stub icon server.
//
//   - WithCORS answers preflight requests and lets browsers read the icon
//     cache header.
//   - WithLogger gives every request an ID and a scoped logger, then writes
//     an access log line.
//   - RegisterPprof mounts the runtime profiles under /debug/pprof/.
package controller
