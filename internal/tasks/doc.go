// Package tasks holds the built-in task implementations shipped with jobd.
// Register them with RegisterBuiltins; anything beyond these comes from the
// embedding application.
package tasks
