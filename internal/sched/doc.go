// Package sched implements jobd's calendar scheduler: a 5-field cron
// expression parser, the next-fire-date computation, and the Cron service
// that dispatches due schedules into the job queue.
//
// Expressions use the classic crontab field order
//
//	minute hour day-of-month month day-of-week
//
// with day-of-week counted Sunday=0 through Saturday=6. The only operator
// is `*`; day-of-month and day-of-week constraints combine with OR
// semantics, as in traditional cron.
package sched
