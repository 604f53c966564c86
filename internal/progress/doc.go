// Package progress defines the events emitted while a crawl job runs and the
// Broadcaster that fans them out to per-job subscribers and global sinks.
package progress
