// Package routing implements the container-key resolution protocol used by
// generated call proxies.
//
// Every remote invocation carries a routing key: a plain string naming which
// backend instance should execute the call. The key comes from the entry
// function's declaration (a literal, or a computed function of the call
// context) and defaults to "default" when absent. The protocol's single
// consistency guarantee is that the same key string always resolves to the
// same backend identifier for the lifetime of the resolver; calls routed to
// different keys may land on independently-lived backend instances.
//
// Routing is key-addressed, never round-robin.
package routing
