// Package gossip implements the in-process medium replicas use to spread
// their state: a fan-out bus where every published message is offered to
// every subscriber.
//
// Properties:
// - Publish never blocks; each subscriber has a bounded backlog
// - A full backlog drops its oldest message and counts it as missed
// - Messages from one publisher arrive in publish order
// - Closing the last publisher closes every subscription
package gossip
