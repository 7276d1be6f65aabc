// Package api hosts the HTTP server, middleware, and handlers. Notable routes:
//   - GET / , /healthz and /readyz for load balancer and Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /triggers?token=... for scheduled reports from an external scheduler.
//   - POST /commands for the Slack slash command.
package api
