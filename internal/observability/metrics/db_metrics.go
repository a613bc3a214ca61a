package metrics

import (
	"database/sql"
	"log"

	"github.com/prometheus/client_golang/prometheus"
)

func registerDBMetrics(reg prometheus.Registerer, db *sql.DB, logger *log.Logger) {
	stat := func(name, help string, read func(sql.DBStats) int) {
		reg.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: metricPrefix + name,
				Help: help,
			},
			func() float64 {
				return poolStat(db, logger, read)
			},
		))
	}
	stat("db_open_connections", "Open connections in the store pool", func(s sql.DBStats) int { return s.OpenConnections })
	stat("db_in_use_connections", "Connections currently in use", func(s sql.DBStats) int { return s.InUse })
	stat("db_idle_connections", "Idle connections in the pool", func(s sql.DBStats) int { return s.Idle })
}

func poolStat(db *sql.DB, logger *log.Logger, read func(sql.DBStats) int) float64 {
	if db == nil {
		return 0
	}
	value := read(db.Stats())
	if value < 0 {
		if logger != nil {
			logger.Printf("metrics: negative pool stat %d", value)
		}
		return 0
	}
	return float64(value)
}
