// Package store keeps the latest status of every poll session and
// publishes changes to subscribers.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [SessionStatus]: JSON representation of one session's progress
//
// [MemoryStore.Observe] has the signature of a billpoll observer, so a store
// can be attached to sessions with billpoll.WithObserver. Subscribers
// receive updates via channels with non-blocking sends (slow subscribers
// miss updates rather than block the poll sessions).
package store
