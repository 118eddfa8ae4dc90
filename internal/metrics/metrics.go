package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dm_messages_sent_total",
		Help: "Messages durably written to the store.",
	})

	SendsRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dm_sends_rate_limited_total",
		Help: "Send attempts rejected by the sliding 60s window.",
	})

	FanoutPublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dm_fanout_publish_errors_total",
		Help: "Real-time publishes that failed after a successful write.",
	})

	ConversationsListed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dm_conversations_listed_total",
		Help: "Conversation list aggregations served.",
	})
)
