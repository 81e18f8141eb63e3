package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// 业务监控指标。未调用 Init 时同样可用 (只是不会被 /metrics 暴露)，测试中无需初始化
var (
	// RequestsTotal dapp 请求数，按方法和结果 (ok / 错误码)
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_requests_total",
		Help: "Total number of dapp requests dispatched",
	}, []string{"method", "outcome"})

	// ApprovalsTotal 审批结果，按类型
	ApprovalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_approvals_total",
		Help: "Total number of approval tickets settled",
	}, []string{"kind", "outcome"})

	// ApprovalQueueDepth 等待展示的审批数量
	ApprovalQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "provider_approval_queue_depth",
		Help: "Approval tickets waiting to be presented",
	})

	// OriginLockContention 同一 origin 重复协商被拒绝的次数
	OriginLockContention = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_origin_lock_contention_total",
		Help: "Acquire attempts rejected with AlreadyProcessing",
	}, []string{"kind"})

	// RpcCacheResults 读请求缓存命中情况 (hit / miss / shared)
	RpcCacheResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_rpc_cache_results_total",
		Help: "RPC result cache lookups",
	}, []string{"result"})

	// TxTotal 交易生命周期终态
	TxTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_tx_total",
		Help: "Transactions by terminal state",
	}, []string{"chain", "state"})

	// WatchersActive 当前活跃的 watcher
	WatchersActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "provider_watchers_active",
		Help: "Active transaction watchers",
	}, []string{"type"})
)

// InitBusinessMetrics 注册业务指标
func InitBusinessMetrics() {
	prometheus.MustRegister(
		RequestsTotal,
		ApprovalsTotal,
		ApprovalQueueDepth,
		OriginLockContention,
		RpcCacheResults,
		TxTotal,
		WatchersActive,
	)
}
