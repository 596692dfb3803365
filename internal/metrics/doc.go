// Package metrics provides observability hooks for chronicle's event stores.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics collection needs no nil checks and costs nothing
// when disabled. To enable metrics, inject NewPrometheusRecorder(registry)
// and mount HTTPHandler on the serve endpoint.
package metrics
