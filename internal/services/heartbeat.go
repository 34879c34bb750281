package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// runHeartbeat periodically writes the service's liveness key until stop is
// closed. The first beat happens immediately so health reads are accurate
// right after startup.
func runHeartbeat(cache AddressCache, service string, interval time.Duration, stop <-chan struct{}, log *logrus.Logger) {
	write := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cache.WriteHeartbeat(ctx, service, interval); err != nil {
			log.WithError(err).WithField("service", service).Warn("failed to write heartbeat")
		}
	}

	write()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			write()
		case <-stop:
			return
		}
	}
}
