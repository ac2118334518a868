/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Tue Mar 26 16:10:42 2019 mstenber
 * Last modified: Wed Mar 27 09:12:30 2019 mstenber
 * Edit time:     21 min
 *
 */

package store

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "logtrie"

type storeMetrics struct {
	commits      prometheus.Counter
	bytesWritten prometheus.Counter
	filesCleaned prometheus.Counter
	reclaims     prometheus.Counter
	files        prometheus.Gauge
	readers      prometheus.GaugeFunc
}

func newStoreMetrics(s *Store) *storeMetrics {
	return &storeMetrics{
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commits_total",
			Help:      "committed write transactions",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "written_bytes_total",
			Help:      "bytes appended to the log by commits",
		}),
		filesCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cleaned_files_total",
			Help:      "log files removed by the cleaner",
		}),
		reclaims: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reclaims_total",
			Help:      "record groups the cleaner had to rewrite",
		}),
		files: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "files",
			Help:      "log files present",
		}),
		readers: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_readers",
			Help:      "open read transactions",
		}, func() float64 {
			return float64(s.readers.Get())
		}),
	}
}

func (self *storeMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{self.commits, self.bytesWritten,
		self.filesCleaned, self.reclaims, self.files, self.readers}
}

// Register makes the metrics of the store available through r.
// Registering the same store twice is not an error.
func (self *Store) Register(r prometheus.Registerer) error {
	for _, c := range self.metrics.collectors() {
		err := r.Register(c)
		if err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return errors.Wrap(err, "Register")
		}
	}
	return nil
}
