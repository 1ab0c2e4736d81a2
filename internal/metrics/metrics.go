// Package metrics holds the prometheus collectors for the session lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TokensIssued counts signed tokens by type (access|refresh).
	TokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "tokens_issued_total",
			Help:      "Number of signed tokens issued",
		},
		[]string{"type"},
	)

	// RefreshTotal counts rotation attempts by outcome (ok|invalid|stale|fail).
	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "refresh_total",
			Help:      "Refresh token rotation attempts",
		},
		[]string{"outcome"},
	)

	// UploadsTotal counts media uploads by outcome (ok|fail).
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "media",
			Name:      "uploads_total",
			Help:      "Media uploads to the object store",
		},
		[]string{"outcome"},
	)
)
