// Package relayflow turns a fire-and-forget publish/subscribe transport into
// request/response. A caller queues independent queries on a Session, every
// query is published as its own message carrying a correlation id and a reply
// address, and the replies are gathered into a stream that closes once each
// query has been answered. Collect bounds the read of that stream with a
// deadline, so a lost or poisoned reply surfaces as ErrDeadlineExceeded rather
// than a hang.
//
// Service hosts the Watermill router, the transport and the middleware chain.
// The Bus attaches to it on the reply topic; a Dispatcher attaches on the
// request topic and answers each query through a QueryHandler. Trace context
// rides along in W3C traceparent, tracestate and baggage headers, and any
// header starting with DirectivePrefix is forwarded verbatim so load tests can
// ask each role to stall.
//
// # Transports
//
// The transport is selected by Config.PubSubSystem:
//   - channel: in-memory Go channels for tests and single-process demos
//   - rabbitmq: fanout exchange per request topic, one durable queue per role
//   - kafka: one consumer group per role
//   - nats: queue groups per role
//   - aws: SNS topics fanned out to one SQS queue per role
//   - http: point-to-point webhooks
//
// NewService retries the transport every ConnectRetryInterval until it comes
// up, so processes may start before the broker.
//
// # Middleware
//
// The default chain opens a consumer span continuing the sender's trace, logs
// messages at debug level, records Prometheus router metrics and recovers
// handler panics. JobHooks add callbacks around every handled message.
package relayflow
