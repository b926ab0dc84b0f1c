package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	csrfTokensIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_auth_csrf_tokens_issued_total",
			Help: "Total number of CSRF tokens issued",
		},
	)

	csrfRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_auth_csrf_rejections_total",
			Help: "Total number of mutating requests rejected by CSRF verification",
		},
		[]string{"reason"},
	)

	signinAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_auth_signin_attempts_total",
			Help: "Total number of signin attempts by outcome",
		},
		[]string{"outcome"},
	)

	sessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_auth_session_transitions_total",
			Help: "Total number of session lifecycle transitions",
		},
		[]string{"transition"},
	)
)
