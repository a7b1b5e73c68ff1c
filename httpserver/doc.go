/*
Package httpserver runs the custody API.

All handler routes sit behind bearer-token authentication and share the
slog request logger. The server also exposes unauthenticated operational
endpoints:

  - GET /livez - liveness
  - GET /readyz - readiness; fails while draining or when the operator
    session cannot be established
  - GET /drain, GET /undrain - toggle readiness ahead of a shutdown
  - /debug/pprof - when EnablePprof is set

Prometheus metrics are served on a separate listener at MetricsAddr.
*/
package httpserver
