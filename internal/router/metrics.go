package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repairbot_commands_total",
		Help: "Recognized router commands, labeled by command.",
	}, []string{"command"})

	fallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repairbot_fallbacks_total",
		Help: "Messages that reached the assistant/static fallback tier.",
	})
)
