// Package api exposes the REST surface of the exchange: token search, USD
// prices, swap quotes, swap intent submission and tracking, cached market
// snapshots, health and Prometheus metrics.
package api
