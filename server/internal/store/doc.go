// Package store holds the latest fleet report received from each agent.
// It is thread-safe and evicts agents that stop reporting once their TTL lapses.
package store
