package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thermoctl/go-mecom-server/internal/logging"
)

// Prometheus counters
var (
	SerialRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_rx_frames_total",
		Help: "Total MeCom frames decoded from the serial link.",
	})
	SerialTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_tx_frames_total",
		Help: "Total MeCom frames written to the serial link.",
	})
	TCPDevRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcpdev_rx_frames_total",
		Help: "Total MeCom frames received from a TCP-attached device.",
	})
	TCPDevTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcpdev_tx_frames_total",
		Help: "Total MeCom frames written to a TCP-attached device.",
	})
	TCPRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_rx_frames_total",
		Help: "Total MeCom frames received from TCP clients.",
	})
	TCPTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_tx_frames_total",
		Help: "Total MeCom frames sent to TCP clients.",
	})
	MQTTRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mqtt_rx_frames_total",
		Help: "Total MeCom frames received from the MQTT command topic.",
	})
	MQTTTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mqtt_tx_frames_total",
		Help: "Total MeCom frames published to the MQTT broker.",
	})
	HubDroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_dropped_frames_total",
		Help: "Total frames dropped by hub due to slow clients.",
	})
	HubKickedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_kicked_clients_total",
		Help: "Total clients disconnected due to backpressure kick policy.",
	})
	HubRejectedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_rejected_clients_total",
		Help: "Total client connection attempts rejected (e.g., max-clients).",
	})
	HubActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_active_clients",
		Help: "Current number of active connected clients.",
	})
	HubBroadcastFanout = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_broadcast_fanout",
		Help: "Number of clients targeted in the most recent broadcast.",
	})
	HubQueueDepthMax = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_queue_depth_max",
		Help: "Observed max queued frames among clients since last sample window.",
	})
	HubQueueDepthAvg = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_queue_depth_avg",
		Help: "Approximate average queued frames per client in last sample.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Total rejected malformed frames (bad header, truncated, overlong).",
	})
	CRCErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crc_errors_total",
		Help: "Total frames rejected due to checksum mismatch.",
	})
	LineTruncations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "line_truncated_total",
		Help: "Total serial lines forwarded truncated at the buffer bound.",
	})
	IdleFlushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rx_idle_flush_total",
		Help: "Total partial serial lines flushed after the receive timeout.",
	})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrTCPRead         = "tcp_read"
	ErrTCPWrite        = "tcp_write"
	ErrHandshake       = "handshake"
	ErrSerialWrite     = "serial_write"
	ErrSerialOverflow  = "serial_tx_overflow"
	ErrSerialRead      = "serial_read"
	ErrDirectionSwitch = "rs485_direction"
	ErrTCPDevWrite     = "tcpdev_write"
	ErrTCPDevOverflow  = "tcpdev_tx_overflow"
	ErrTCPDevRead      = "tcpdev_read"
	ErrMQTTPublish     = "mqtt_publish"
)

// StartHTTP serves Prometheus metrics at /metrics on the given mux.
// If mux is nil, a default mux is created and registered.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localSerialRx   uint64
	localSerialTx   uint64
	localTCPDevRx   uint64
	localTCPDevTx   uint64
	localTCPRx      uint64
	localTCPTx      uint64
	localMQTTRx     uint64
	localMQTTTx     uint64
	localHubDrop    uint64
	localHubKick    uint64
	localHubReject  uint64
	localErrors     uint64
	localHubClients uint64
	localFanout     uint64
	localMalformed  uint64
	localCRC        uint64
	localTruncated  uint64
	localIdleFlush  uint64
	localQDMax      uint64
	localQDAvg      uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	SerialRx      uint64
	SerialTx      uint64
	TCPDevRx      uint64
	TCPDevTx      uint64
	TCPRx         uint64
	TCPTx         uint64
	MQTTRx        uint64
	MQTTTx        uint64
	HubDrops      uint64
	HubKicks      uint64
	HubRejects    uint64
	Errors        uint64 // sum across error labels
	HubClients    uint64
	Fanout        uint64
	Malformed     uint64
	CRCErrors     uint64
	Truncated     uint64
	IdleFlushes   uint64
	QueueDepthMax uint64
	QueueDepthAvg uint64
}

func Snap() Snapshot {
	return Snapshot{
		SerialRx:      atomic.LoadUint64(&localSerialRx),
		SerialTx:      atomic.LoadUint64(&localSerialTx),
		TCPDevRx:      atomic.LoadUint64(&localTCPDevRx),
		TCPDevTx:      atomic.LoadUint64(&localTCPDevTx),
		TCPRx:         atomic.LoadUint64(&localTCPRx),
		TCPTx:         atomic.LoadUint64(&localTCPTx),
		MQTTRx:        atomic.LoadUint64(&localMQTTRx),
		MQTTTx:        atomic.LoadUint64(&localMQTTTx),
		HubDrops:      atomic.LoadUint64(&localHubDrop),
		HubKicks:      atomic.LoadUint64(&localHubKick),
		HubRejects:    atomic.LoadUint64(&localHubReject),
		Errors:        atomic.LoadUint64(&localErrors),
		HubClients:    atomic.LoadUint64(&localHubClients),
		Fanout:        atomic.LoadUint64(&localFanout),
		Malformed:     atomic.LoadUint64(&localMalformed),
		CRCErrors:     atomic.LoadUint64(&localCRC),
		Truncated:     atomic.LoadUint64(&localTruncated),
		IdleFlushes:   atomic.LoadUint64(&localIdleFlush),
		QueueDepthMax: atomic.LoadUint64(&localQDMax),
		QueueDepthAvg: atomic.LoadUint64(&localQDAvg),
	}
}

// Wrapper helpers to keep call sites simple.
func IncSerialRx() {
	SerialRxFrames.Inc()
	atomic.AddUint64(&localSerialRx, 1)
}

func IncSerialTx() {
	SerialTxFrames.Inc()
	atomic.AddUint64(&localSerialTx, 1)
}

// IncTCPDevRx increments TCP device-link receive counters.
func IncTCPDevRx() {
	TCPDevRxFrames.Inc()
	atomic.AddUint64(&localTCPDevRx, 1)
}

// IncTCPDevTx increments TCP device-link transmit counters.
func IncTCPDevTx() {
	TCPDevTxFrames.Inc()
	atomic.AddUint64(&localTCPDevTx, 1)
}

func IncTCPRx() {
	TCPRxFrames.Inc()
	atomic.AddUint64(&localTCPRx, 1)
}

func AddTCPTx(n int) {
	TCPTxFrames.Add(float64(n))
	atomic.AddUint64(&localTCPTx, uint64(n))
}

func IncMQTTRx() {
	MQTTRxFrames.Inc()
	atomic.AddUint64(&localMQTTRx, 1)
}

func IncMQTTTx() {
	MQTTTxFrames.Inc()
	atomic.AddUint64(&localMQTTTx, 1)
}

func IncHubDrop() {
	HubDroppedFrames.Inc()
	atomic.AddUint64(&localHubDrop, 1)
}

func IncHubKick() {
	HubKickedClients.Inc()
	atomic.AddUint64(&localHubKick, 1)
}

func IncHubReject() {
	HubRejectedClients.Inc()
	atomic.AddUint64(&localHubReject, 1)
}

func SetHubClients(n int) {
	HubActiveClients.Set(float64(n))
	atomic.StoreUint64(&localHubClients, uint64(n))
}

func SetBroadcastFanout(n int) {
	HubBroadcastFanout.Set(float64(n))
	atomic.StoreUint64(&localFanout, uint64(n))
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

func IncCRCError() {
	CRCErrors.Inc()
	atomic.AddUint64(&localCRC, 1)
}

func IncLineTruncated() {
	LineTruncations.Inc()
	atomic.AddUint64(&localTruncated, 1)
}

func IncIdleFlush() {
	IdleFlushes.Inc()
	atomic.AddUint64(&localIdleFlush, 1)
}

// SetQueueDepth records a snapshot of max and avg queue depth.
func SetQueueDepth(max, avg int) {
	HubQueueDepthMax.Set(float64(max))
	HubQueueDepthAvg.Set(float64(avg))
	atomic.StoreUint64(&localQDMax, uint64(max))
	atomic.StoreUint64(&localQDAvg, uint64(avg))
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register common error label series so first error does not log a registration latency.
	for _, lbl := range []string{
		ErrTCPRead, ErrTCPWrite, ErrHandshake,
		ErrSerialWrite, ErrSerialOverflow, ErrSerialRead, ErrDirectionSwitch,
		ErrTCPDevWrite, ErrTCPDevOverflow, ErrTCPDevRead, ErrMQTTPublish,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
