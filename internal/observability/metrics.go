package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dm_http_requests_total",
			Help: "Total number of HTTP requests processed by the messaging service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dm_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	grpcServerHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_server_handled_total",
			Help: "Total number of gRPC requests handled by the server.",
		},
		[]string{"grpc_service", "grpc_method", "grpc_code"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dm_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dm_ws_events_total",
			Help: "Total number of websocket lifecycle events.",
		},
		[]string{"kind", "event"},
	)
	fanoutDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dm_fanout_deliveries_total",
			Help: "Realtime events handed to sessions, by outcome.",
		},
		[]string{"event", "outcome"},
	)
	eventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dm_events_dropped_total",
			Help: "Events dropped because the dispatch queue was full or stopped.",
		},
	)
	messagesStoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dm_messages_stored_total",
			Help: "Messages persisted, by content type.",
		},
		[]string{"type"},
	)
	storeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dm_store_errors_total",
			Help: "Store operations that failed, by operation.",
		},
		[]string{"op"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dm_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		grpcServerHandledTotal,
		wsActiveConnections,
		wsEventsTotal,
		fanoutDeliveriesTotal,
		eventsDroppedTotal,
		messagesStoredTotal,
		storeErrorsTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func GRPCServerMetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		statusInfo := status.Convert(err)
		service, method := splitFullMethod(info.FullMethod)
		grpcServerHandledTotal.WithLabelValues(service, method, statusInfo.Code().String()).Inc()
		return resp, err
	}
}

func splitFullMethod(fullMethod string) (string, string) {
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 3 {
		return "unknown", "unknown"
	}
	return parts[1], parts[2]
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

// ObserveFanout counts one delivery attempt; outcome is "delivered" or
// "dropped".
func ObserveFanout(event, outcome string) {
	fanoutDeliveriesTotal.WithLabelValues(event, outcome).Inc()
}

func IncEventDropped() {
	eventsDroppedTotal.Inc()
}

func IncMessageStored(contentType string) {
	messagesStoredTotal.WithLabelValues(contentType).Inc()
}

func IncStoreError(op string) {
	storeErrorsTotal.WithLabelValues(op).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
