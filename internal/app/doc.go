// Package app assembles the daemon: config, logging, storage, the task
// registry, the job queue, and the cron scheduler, supervised as one unit.
// Persistence is bound here, through the queue and scheduler lifecycle
// hooks, so the core packages stay storage-free.
package app
