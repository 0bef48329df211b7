// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exposes exchange statistics and the latest telemetry
// to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Thermoquad/vescstat/pkg/vesc"
)

const namespace = "vesc"

// NewRegistry creates a registry with the Go runtime and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the Prometheus HTTP handler for reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Telemetry holds gauges for the most recent decoded values
type Telemetry struct {
	TempMotor       prometheus.Gauge
	MotorCurrent    prometheus.Gauge
	InputCurrent    prometheus.Gauge
	RPM             prometheus.Gauge
	InputVoltage    prometheus.Gauge
	WattHours       *prometheus.GaugeVec // labels: direction=used|charged
	Fault           prometheus.Gauge
	Throttle        prometheus.Gauge
	StateOfCharge   prometheus.Gauge
	CellVoltage     *prometheus.GaugeVec // labels: cell
	FirmwareVersion *prometheus.GaugeVec // labels: version
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
}

// NewTelemetry registers and returns the telemetry gauges
func NewTelemetry(reg prometheus.Registerer) *Telemetry {
	t := &Telemetry{
		TempMotor:    gauge("motor_temperature_celsius", "Motor temperature."),
		MotorCurrent: gauge("motor_current_amperes", "Average motor current."),
		InputCurrent: gauge("input_current_amperes", "Average input current."),
		RPM:          gauge("rpm", "Electrical RPM."),
		InputVoltage: gauge("input_voltage_volts", "Input voltage."),
		WattHours: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "energy_watt_hours",
			Help:      "Energy counters reported by the controller.",
		}, []string{"direction"}),
		Fault:         gauge("fault_code", "Controller fault code, 0 when healthy."),
		Throttle:      gauge("ppm_throttle", "Decoded PPM input, -1 to 1."),
		StateOfCharge: gauge("bms_state_of_charge_percent", "Battery state of charge."),
		CellVoltage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bms_cell_voltage_volts",
			Help:      "Battery cell voltages.",
		}, []string{"cell"}),
		FirmwareVersion: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "firmware_info",
			Help:      "Controller firmware version, always 1.",
		}, []string{"version"}),
	}
	reg.MustRegister(t.TempMotor, t.MotorCurrent, t.InputCurrent, t.RPM, t.InputVoltage,
		t.WattHours, t.Fault, t.Throttle, t.StateOfCharge, t.CellVoltage, t.FirmwareVersion)
	return t
}

// Observe updates the gauges for the field groups a decode touched
func (t *Telemetry) Observe(s vesc.Snapshot, fields vesc.Fields) {
	m := s.Motor
	if fields.Has(vesc.FieldFirmware) {
		t.FirmwareVersion.Reset()
		t.FirmwareVersion.WithLabelValues(strconv.Itoa(int(m.Firmware.Major)) + "." + strconv.Itoa(int(m.Firmware.Minor))).Set(1)
	}
	if fields.Has(vesc.FieldValues) {
		t.TempMotor.Set(m.TempMotor)
		t.MotorCurrent.Set(m.AvgMotorCurrent)
		t.InputCurrent.Set(m.AvgInputCurrent)
		t.RPM.Set(float64(m.RPM))
		t.InputVoltage.Set(m.InputVoltage)
		t.WattHours.WithLabelValues("used").Set(m.WattHours)
		t.WattHours.WithLabelValues("charged").Set(m.WattHoursCharged)
		t.Fault.Set(float64(m.Fault))
	}
	if fields.Has(vesc.FieldThrottle) {
		t.Throttle.Set(m.Throttle)
	}
	if fields.Has(vesc.FieldStateOfCharge) {
		t.StateOfCharge.Set(float64(s.Battery.StateOfCharge))
	}
	if fields.Has(vesc.FieldCells) {
		t.CellVoltage.Reset()
		for i, v := range s.Battery.ValidCells() {
			t.CellVoltage.WithLabelValues(strconv.Itoa(i + 1)).Set(v)
		}
	}
}

// RegisterStatistics exposes exchange and framing counters from stats.
// Values are read from stats on every scrape.
func RegisterStatistics(reg prometheus.Registerer, stats *vesc.Statistics) {
	counter := func(name, help string, read func(c vesc.Counters) uint64) prometheus.CounterFunc {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(read(stats.Snapshot()))
		})
	}

	reg.MustRegister(
		counter("exchanges_total", "Request/response exchanges attempted.", func(c vesc.Counters) uint64 { return c.Exchanges }),
		counter("exchanges_successful_total", "Exchanges that decoded a reply.", func(c vesc.Counters) uint64 { return c.Successful }),
		counter("exchange_timeouts_total", "Exchanges with no reply before the deadline.", func(c vesc.Counters) uint64 { return c.Timeouts }),
		counter("checksum_errors_total", "Replies with a CRC mismatch.", func(c vesc.Counters) uint64 { return c.ChecksumErrors }),
		counter("unsupported_commands_total", "Replies with a command id the decoder does not know.", func(c vesc.Counters) uint64 { return c.UnsupportedCommands }),
		counter("short_payloads_total", "Replies shorter than their layout.", func(c vesc.Counters) uint64 { return c.ShortPayloads }),
		counter("invalid_start_bytes_total", "Bytes skipped while scanning for a start marker.", func(c vesc.Counters) uint64 { return c.InvalidStartBytes }),
		counter("long_frames_total", "Unsupported long frames skipped.", func(c vesc.Counters) uint64 { return c.UnsupportedFrames }),
		counter("malformed_frames_total", "Frames discarded for a missing end marker.", func(c vesc.Counters) uint64 { return c.MalformedFrames }),
		counter("buffer_overflows_total", "Receives aborted by a full frame buffer.", func(c vesc.Counters) uint64 { return c.Overflows }),
	)
}

// Serve runs an HTTP server exposing reg on /metrics until ctx is done
func Serve(ctx context.Context, addr string, reg *prometheus.Registry, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(reg))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
