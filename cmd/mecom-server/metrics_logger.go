package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/thermoctl/go-mecom-server/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"serial_rx", snap.SerialRx,
					"serial_tx", snap.SerialTx,
					"tcpdev_rx", snap.TCPDevRx,
					"tcpdev_tx", snap.TCPDevTx,
					"tcp_rx", snap.TCPRx,
					"tcp_tx", snap.TCPTx,
					"mqtt_rx", snap.MQTTRx,
					"mqtt_tx", snap.MQTTTx,
					"hub_drops", snap.HubDrops,
					"crc_errors", snap.CRCErrors,
					"malformed", snap.Malformed,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
