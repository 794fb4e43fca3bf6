// Package metrics 定义服务的 Prometheus 指标。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fridge_shop"

var (
	// HTTPRequestsTotal 按方法、路由和状态码统计请求数
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "The total number of HTTP requests",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration 请求耗时
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "The HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// LoginAttemptsTotal 登录结果：success / invalid_credentials / rate_limited / error
	LoginAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "The total number of login attempts by outcome",
	}, []string{"outcome"})

	// TokenRefreshTotal 刷新令牌结果
	TokenRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refresh_total",
		Help:      "The total number of token refreshes by outcome",
	}, []string{"outcome"})

	// TokensRevokedTotal 写入吊销名单的令牌数
	TokensRevokedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_revoked_total",
		Help:      "The total number of tokens added to the revocation registry",
	})

	// AuthFailuresTotal 按原因统计被拒绝的 bearer 令牌
	AuthFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_failures_total",
		Help:      "The total number of rejected bearer tokens by reason",
	}, []string{"reason"})

	// OrdersCreatedTotal 下单结果：created / out_of_stock / product_inactive / not_found / error
	OrdersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_checkout_total",
		Help:      "The total number of checkout attempts by outcome",
	}, []string{"outcome"})

	// OrderTransitionsTotal 订单状态迁移，result 为 ok 或 rejected
	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_transitions_total",
		Help:      "The total number of order status transitions",
	}, []string{"from", "to", "result"})

	// EventsPublishedTotal 订单事件发布结果
	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_events_published_total",
		Help:      "The total number of order events published by type and result",
	}, []string{"type", "result"})
)

// Handler 返回 /metrics 处理器
func Handler() http.Handler {
	return promhttp.Handler()
}
