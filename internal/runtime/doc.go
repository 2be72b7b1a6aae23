/*
Package runtime hosts relayflow's message handlers.

Service connects the configured transport, retrying until the broker answers,
and owns the Watermill router that every handler is registered on. The
correlation bus registers its reply handler here and workers register one
handler per consumer slot.

# Middleware

DefaultMiddlewares installs, in order:
  - ConsumeTracing: consumer span parented on the message's traceparent
  - LogMessages: debug logging of payload and metadata
  - Metrics: Prometheus router metrics served on MetricsPort
  - Recoverer: panics become errors, so the message is nacked

Configured JobHooks run inside that chain, followed by any custom middleware.

# Stats

Every handler is wrapped with HandlerStats: processed and failed counts,
latency percentiles over the last samples, throughput over the last minute and
an error breakdown by ErrorCategory. Service.Handlers returns them and, when
metrics are enabled, /handlers on MetricsPort serves them as JSON.

# Sub-packages

  - config/: environment configuration with validation
  - correlation/: CorrelationBus and its one-shot callback registry
  - directives/: load-test delay headers
  - errors/: sentinel errors and error types
  - fanout/: aggregation sessions, reply post-processing and the deadline gate
  - ids/: ULID correlation ids
  - jsoncodec/: JSON encoding
  - logging/: logger interface with slog and zap backends
  - metadata/: message metadata helpers and reserved keys
  - tracing/: W3C trace context across message headers
  - transport/: transport factory used by Service
  - worker/: request dispatcher and its Prometheus reporter
*/
package runtime
