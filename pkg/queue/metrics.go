package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ItemsEnqueued tracks items pushed by queue name
	ItemsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termsync_queue_enqueued_total",
			Help: "Total number of work items pushed to the queue",
		},
		[]string{"queue"},
	)

	// DuplicateReferences tracks adds skipped because the reference was already enqueued
	DuplicateReferences = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termsync_queue_duplicates_total",
			Help: "Total number of adds skipped for an already enqueued reference",
		},
		[]string{"queue"},
	)

	// ItemsDequeued tracks items handed to workers
	ItemsDequeued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termsync_queue_dequeued_total",
			Help: "Total number of work items taken from the queue",
		},
		[]string{"queue"},
	)

	// QueueErrors tracks queue operation errors
	QueueErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termsync_queue_errors_total",
			Help: "Total number of queue operation errors",
		},
		[]string{"operation"}, // "add", "next", "len"
	)
)
