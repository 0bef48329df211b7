// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Thermoquad/vescstat/internal/metrics"
	"github.com/Thermoquad/vescstat/pkg/vesc"
)

// pollRequest is one request in the poll cycle
type pollRequest struct {
	name    string
	dialect vesc.Dialect
	payload []byte
}

// pollResult is the outcome of one poll exchange
type pollResult struct {
	time      time.Time
	request   string
	fields    vesc.Fields
	snapshot  vesc.Snapshot
	err       error
	anomalies []vesc.ValidationError
}

// buildPollCycle returns the requests polled in turn. Values are always
// polled; throttle and battery requests are added on demand.
func buildPollCycle(peer int, withPPM, withBMS bool) []pollRequest {
	requests := []pollRequest{
		{"values", vesc.DialectMotorController, vesc.NewGetValuesRequest(vesc.DefaultValuesMask)},
	}
	if withPPM {
		if peer >= 0 {
			requests = append(requests, pollRequest{"ppm", vesc.DialectMotorController,
				vesc.NewForwardToPeer(uint8(peer), vesc.NewDecodedPPMRequest())})
		} else {
			requests = append(requests, pollRequest{"ppm", vesc.DialectMotorController, vesc.NewDecodedPPMRequest()})
		}
	}
	if withBMS && peer >= 0 {
		requests = append(requests,
			pollRequest{"bms values", vesc.DialectBatteryManagement, vesc.NewForwardToPeer(uint8(peer), vesc.NewBMSValuesRequest())},
			pollRequest{"bms cells", vesc.DialectBatteryManagement, vesc.NewForwardToPeer(uint8(peer), vesc.NewBMSCellsRequest())},
		)
	}
	return requests
}

// poller cycles through requests on one client at a limited rate
type poller struct {
	client    *vesc.Client
	requests  []pollRequest
	limiter   *rate.Limiter
	telemetry *metrics.Telemetry
	now       func() time.Time
}

func newPoller(client *vesc.Client, requests []pollRequest, hz float64, telemetry *metrics.Telemetry) *poller {
	return &poller{
		client:    client,
		requests:  requests,
		limiter:   rate.NewLimiter(rate.Limit(hz), 1),
		telemetry: telemetry,
		now:       time.Now,
	}
}

// poll runs a single request. The snapshot is copied under the client lock,
// so results can be handed to other goroutines.
func (p *poller) poll(req pollRequest) pollResult {
	fields, snap, err := p.client.ExchangeSnapshot(req.dialect, req.payload)
	res := pollResult{
		time:     p.now(),
		request:  req.name,
		fields:   fields,
		snapshot: snap,
		err:      err,
	}
	if err != nil {
		return res
	}

	res.anomalies = vesc.ValidateSnapshot(&res.snapshot, fields)
	if p.telemetry != nil {
		p.telemetry.Observe(res.snapshot, fields)
	}
	return res
}

// run polls until ctx is done or the stream closes. It returns nil when
// ctx ends and the stream error otherwise.
func (p *poller) run(ctx context.Context, out func(pollResult)) error {
	if len(p.requests) == 0 {
		return errors.New("nothing to poll")
	}
	for i := 0; ; i++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil
		}
		res := p.poll(p.requests[i%len(p.requests)])
		out(res)
		if errors.Is(res.err, vesc.ErrStreamClosed) {
			return res.err
		}
	}
}

// connectionEvent reports connection state changes from pollWithReconnect
type connectionEvent struct {
	connected bool
	info      string
	err       error
}

// pollWithReconnect opens a session and polls it. When the connection is
// lost it reconnects with exponential backoff and keeps polling, until ctx
// is done.
func pollWithReconnect(ctx context.Context, open func() (*session, error), requests []pollRequest, hz float64,
	telemetry *metrics.Telemetry, out func(pollResult), events func(connectionEvent)) {
	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		s, err := open()
		if err != nil {
			events(connectionEvent{err: err})
			logger.Warn("connect failed", zap.Error(err), zap.Duration("retry", backoff))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		backoff = 1 * time.Second
		events(connectionEvent{connected: true, info: s.info})

		err = newPoller(s.client, requests, hz, telemetry).run(ctx, out)
		s.Close()
		if err == nil {
			return
		}
		events(connectionEvent{err: err})
		logger.Warn("connection lost", zap.Error(err))
	}
}
