// Package job implements jobd's execution queue: headers, tasks, the task
// registry, the job factory, and a strictly-ordered single-concurrency queue.
//
// One Queue runs at most one job at a time. Lifecycle hooks (submit, start,
// stop, cancel) are single-subscriber slots an embedder uses to persist job
// headers; see internal/app for the wiring against internal/storage.
package job
