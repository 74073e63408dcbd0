// Package metrics exposes cache and refresh counters in Prometheus text
// exposition format. Families are assembled by hand from client_model types
// and encoded with expfmt on each scrape; there is no background collection.
//
// All methods are safe on a nil *Metrics, so instrumented components can
// treat metrics as strictly optional.
package metrics
