// Copyright (c) bundlekit Authors.
// Licensed under the MIT License.

/*
Package metrics records reconciliation passes as Prometheus metrics.

# Core type

  - Collector: registers its vectors on a caller-supplied Registerer via
    promauto and implements the reconcile.Metrics sink.

# Metrics

  - passes_total{status} and pass_duration_seconds{status}
  - transitions_total{kind} for staged install and uninstall actions
  - plugins_instantiated_total and active_plugins
  - last_success_timestamp_seconds
*/
package metrics
