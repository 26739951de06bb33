// Package storage provides a minimal persistence layer used by jobd.
//
// It currently supports:
//   - Pending job headers (so unfinished work survives restarts)
//   - Schedule headers plus the highest schedule id ever issued
//
// The queue and scheduler never call it directly: internal/app binds it
// through their lifecycle hooks.
package storage
