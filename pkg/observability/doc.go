/*
Package observability exposes Prometheus metrics for the XRLT engine.

Metrics collects HTTP request counts and latencies through Middleware, and
include and script activity through the domain.Hooks it returns from Hooks.
Each Metrics owns its registry so several engines can run in one process.
*/
package observability
