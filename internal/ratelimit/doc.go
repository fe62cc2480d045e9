// Package ratelimit enforces per-client request budgets in front of
// the delivery routes.
//
// The limiter is in-memory and single-instance. It blunts one device
// or script hammering the server and gives operators a log line and a
// counter when that happens. It does not help against traffic spread
// across many source IPs; that belongs to upstream filtering.
package ratelimit
