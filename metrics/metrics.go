// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics exposes bridge accounting counters and gauges.
package metrics

import (
	"github.com/luxfi/metric"
)

// Metrics tracks transfer activity and the escrow controller's books.
// A nil *Metrics is valid and records nothing, so components can be
// constructed without a registry in tests.
type Metrics struct {
	transfersOut metric.Counter
	transfersIn  metric.Counter
	amountOut    metric.Counter
	amountIn     metric.Counter
	rebalances   metric.Counter
	yieldSkims   metric.Counter

	totalBridged  metric.Gauge
	liquidBalance metric.Gauge
}

// New creates and registers the bridge metrics.
func New(registerer metric.Registerer) (*Metrics, error) {
	m := &Metrics{
		transfersOut: metric.NewCounter(metric.CounterOpts{
			Name: "bridge_transfers_out",
			Help: "Number of outbound transfers initiated",
		}),
		transfersIn: metric.NewCounter(metric.CounterOpts{
			Name: "bridge_transfers_in",
			Help: "Number of inbound transfers claimed",
		}),
		amountOut: metric.NewCounter(metric.CounterOpts{
			Name: "bridge_amount_out",
			Help: "Cumulative amount sent outbound, in base units",
		}),
		amountIn: metric.NewCounter(metric.CounterOpts{
			Name: "bridge_amount_in",
			Help: "Cumulative amount claimed inbound, in base units",
		}),
		rebalances: metric.NewCounter(metric.CounterOpts{
			Name: "bridge_rebalances",
			Help: "Number of buffer rebalances that moved funds",
		}),
		yieldSkims: metric.NewCounter(metric.CounterOpts{
			Name: "bridge_yield_skims",
			Help: "Number of yield skims paid to the beneficiary",
		}),
		totalBridged: metric.NewGauge(metric.GaugeOpts{
			Name: "bridge_total_bridged",
			Help: "Nominal liability owed to representation holders, in base units",
		}),
		liquidBalance: metric.NewGauge(metric.GaugeOpts{
			Name: "bridge_liquid_balance",
			Help: "Uninvested escrow balance, in base units",
		}),
	}

	collectors := []metric.Counter{
		m.transfersOut,
		m.transfersIn,
		m.amountOut,
		m.amountIn,
		m.rebalances,
		m.yieldSkims,
	}
	for _, c := range collectors {
		if err := registerer.Register(metric.AsCollector(c)); err != nil {
			return nil, err
		}
	}
	if err := registerer.Register(metric.AsCollector(m.totalBridged)); err != nil {
		return nil, err
	}
	if err := registerer.Register(metric.AsCollector(m.liquidBalance)); err != nil {
		return nil, err
	}

	return m, nil
}

// MarkTransferOut records an initiated outbound transfer.
func (m *Metrics) MarkTransferOut(amount uint64) {
	if m == nil {
		return
	}
	m.transfersOut.Inc()
	m.amountOut.Add(float64(amount))
}

// MarkTransferIn records a claimed inbound transfer.
func (m *Metrics) MarkTransferIn(amount uint64) {
	if m == nil {
		return
	}
	m.transfersIn.Inc()
	m.amountIn.Add(float64(amount))
}

// MarkRebalance records a rebalance that moved funds.
func (m *Metrics) MarkRebalance() {
	if m == nil {
		return
	}
	m.rebalances.Inc()
}

// MarkYieldSkim records a paid yield skim.
func (m *Metrics) MarkYieldSkim() {
	if m == nil {
		return
	}
	m.yieldSkims.Inc()
}

// SetBooks updates the liability and liquid balance gauges.
func (m *Metrics) SetBooks(totalBridged, liquidBalance uint64) {
	if m == nil {
		return
	}
	m.totalBridged.Set(float64(totalBridged))
	m.liquidBalance.Set(float64(liquidBalance))
}
