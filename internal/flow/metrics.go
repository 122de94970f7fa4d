package flow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repairbot_flow_turns_total",
		Help: "Completed flow turns, labeled by flow.",
	}, []string{"flow"})

	appointmentsBookedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repairbot_appointments_booked_total",
		Help: "Appointments committed through the booking flow.",
	})

	jobSheetFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "repairbot_job_sheet_failures_total",
		Help: "Job-sheet renders or deliveries that failed after booking.",
	})
)
