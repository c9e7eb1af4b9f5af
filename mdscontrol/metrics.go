package mdscontrol

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const prometheusNamespace = "mdsauth"

var (
	authDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: prometheusNamespace,
		Name:      "auth_decisions_total",
		Help:      "Authorization decisions by result.",
	}, []string{"result"})

	idmapUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: prometheusNamespace,
		Name:      "idmap_updates_total",
		Help:      "Identity remap attempts by outcome.",
	}, []string{"outcome"})
)
