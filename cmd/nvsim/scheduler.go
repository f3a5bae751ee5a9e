package main

import (
	"log"

	"github.com/robfig/cron/v3"

	nv "osalnv"
)

// runScheduled starts a cron scheduler that periodically touches a
// well-known watchdog Id through the full public API, exercising exactly
// the same mutex-serialized path any other caller would use — scheduling a
// tick is not a privileged operation. It blocks until interrupted.
func runScheduled(store *nv.Store, logger *log.Logger, expr string) {
	const watchdogID = 0x0020

	c := cron.New(cron.WithSeconds(), cron.WithLogger(cron.VerbosePrintfLogger(logger)))
	tick := uint32(0)
	_, err := c.AddFunc(expr, func() {
		tick++
		buf := []byte{byte(tick), byte(tick >> 8), byte(tick >> 16), byte(tick >> 24)}
		if _, err := store.ItemInit(watchdogID, 4, buf); err != nil {
			logger.Printf("scheduler: item_init watchdog: %v", err)
			return
		}
		status, err := store.Write(watchdogID, 0, 4, buf)
		if err != nil {
			logger.Printf("scheduler: write watchdog: %v", err)
			return
		}
		logger.Printf("scheduler: tick %d -> %v", tick, status)
	})
	if err != nil {
		logger.Fatalf("scheduler: bad cron expression %q: %v", expr, err)
	}

	logger.Printf("scheduler: starting with expression %q", expr)
	c.Run()
}
