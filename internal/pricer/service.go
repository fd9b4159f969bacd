/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package pricer

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"citizen-economy-go/internal/clock"
	"citizen-economy-go/internal/database"
	"citizen-economy-go/internal/models"
	"citizen-economy-go/internal/store"

	"go.uber.org/zap"
)

// plentyCoverage is reported when coverage cannot be computed.
const plentyCoverage = 2.0

const flowWindow = 24 * time.Hour

const (
	queryEnsureMarketState = `
		INSERT OR IGNORE INTO market_state (id, current_price, last_price, ema_coverage, ema_flow_index, last_updated_at)
		VALUES (1, ?, ?, ?, 0, ?)`

	queryGetMarketState = `
		SELECT current_price, last_price, ema_coverage, ema_flow_index, last_updated_at
		FROM market_state
		WHERE id = 1`

	queryUpdateMarketState = `
		UPDATE market_state
		SET current_price = ?, last_price = ?, ema_coverage = ?, ema_flow_index = ?, last_updated_at = ?
		WHERE id = 1`
)

// Params are the repeg tunables.
type Params struct {
	BasePrice      float64
	MinPrice       float64
	MaxPrice       float64
	TargetCoverage float64
	KCoverage      float64
	KFlow          float64
	Alpha          float64
	FlowAnchor     float64
	MaxStep        float64
}

func DefaultParams() Params {
	return Params{
		BasePrice:      1.0,
		MinPrice:       0.3,
		MaxPrice:       3.0,
		TargetCoverage: 1.2,
		KCoverage:      0.4,
		KFlow:          0.2,
		Alpha:          0.3,
		FlowAnchor:     100000,
		MaxStep:        0.15,
	}
}

func (p Params) Validate() error {
	switch {
	case p.MinPrice <= 0 || p.MaxPrice < p.MinPrice:
		return store.Invalid("price band [%v, %v] is invalid", p.MinPrice, p.MaxPrice)
	case p.BasePrice < p.MinPrice || p.BasePrice > p.MaxPrice:
		return store.Invalid("base price %v outside band [%v, %v]", p.BasePrice, p.MinPrice, p.MaxPrice)
	case p.Alpha <= 0 || p.Alpha > 1:
		return store.Invalid("smoothing alpha must be in (0, 1], got %v", p.Alpha)
	case p.FlowAnchor <= 0:
		return store.Invalid("flow anchor must be positive, got %v", p.FlowAnchor)
	case p.MaxStep <= 0 || p.MaxStep >= 1:
		return store.Invalid("max step must be in (0, 1), got %v", p.MaxStep)
	}
	return nil
}

// FlowSource provides ledger aggregates for Repeg.
type FlowSource interface {
	FlowStats(ctx context.Context, since time.Time) (*models.FlowStats, error)
}

// Coverage is reserves over nominal outstanding liability.
func Coverage(in models.PriceInputs) float64 {
	liability := in.NcrOutstanding * in.ReferencePrice
	if in.NcrOutstanding == 0 || in.ReferencePrice == 0 {
		return plentyCoverage
	}
	return in.ReservesFiat / liability
}

// FlowIndex is the normalized 24h net expansion.
func FlowIndex(in models.PriceInputs, anchor float64) float64 {
	return (in.NetMint24h - in.NetBurn24h - in.NetRedemption24h) / anchor
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// Step computes the next market state from the current one. It is pure.
func Step(state models.MarketState, in models.PriceInputs, p Params, now time.Time) (models.MarketState, models.PriceUpdate) {
	u := models.PriceUpdate{
		Inputs:      in,
		RawCoverage: Coverage(in),
		RawFlow:     FlowIndex(in, p.FlowAnchor),
		OldPrice:    state.CurrentPrice,
		UpdatedAt:   now,
	}
	u.EmaCoverage = p.Alpha*u.RawCoverage + (1-p.Alpha)*state.EmaCoverage
	u.EmaFlow = p.Alpha*u.RawFlow + (1-p.Alpha)*state.EmaFlowIndex

	u.CovAdjust = p.KCoverage * (u.EmaCoverage - p.TargetCoverage)
	u.FlowAdjust = -p.KFlow * u.EmaFlow
	u.TotalAdjust = clamp(u.CovAdjust+u.FlowAdjust, -p.MaxStep, p.MaxStep)

	u.ProposedRaw = state.CurrentPrice * (1 + u.TotalAdjust)
	u.NewPrice = clamp(u.ProposedRaw, p.MinPrice, p.MaxPrice)

	next := models.MarketState{
		CurrentPrice:  u.NewPrice,
		LastPrice:     state.CurrentPrice,
		EmaCoverage:   u.EmaCoverage,
		EmaFlowIndex:  u.EmaFlow,
		LastUpdatedAt: now,
	}
	return next, u
}

// Service owns the singleton market state.
type Service struct {
	db     *database.Service
	clock  clock.Clock
	params Params
	flows  FlowSource
}

func NewService(db *database.Service, clk clock.Clock, params Params, flows FlowSource) *Service {
	return &Service{
		db:     db,
		clock:  clk,
		params: params,
		flows:  flows,
	}
}

// GetCurrentPrice returns the market state, initializing it at the base
// price on first use.
func (s *Service) GetCurrentPrice(ctx context.Context) (*models.MarketState, error) {
	return s.loadState(ctx, s.db.DB())
}

// UpdatePrice runs one repeg with explicit inputs. Every call advances the
// EMAs, so callers debounce.
func (s *Service) UpdatePrice(ctx context.Context, in models.PriceInputs) (*models.PriceUpdate, error) {
	if in.ReservesFiat < 0 || in.NcrOutstanding < 0 || in.ReferencePrice < 0 {
		return nil, store.Invalid("price inputs must be non-negative")
	}

	var update models.PriceUpdate
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		state, err := s.loadState(ctx, tx)
		if err != nil {
			return err
		}

		var next models.MarketState
		next, update = Step(*state, in, s.params, s.clock.Now())
		_, err = tx.ExecContext(ctx, queryUpdateMarketState, next.CurrentPrice, next.LastPrice,
			next.EmaCoverage, next.EmaFlowIndex, next.LastUpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update market state: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("NCR price updated",
		zap.Float64("old_price", update.OldPrice),
		zap.Float64("new_price", update.NewPrice),
		zap.Float64("raw_coverage", update.RawCoverage),
		zap.Float64("ema_coverage", update.EmaCoverage),
		zap.Float64("raw_flow", update.RawFlow),
		zap.Float64("ema_flow", update.EmaFlow),
		zap.Float64("total_adjust", update.TotalAdjust))

	return &update, nil
}

// Repeg gathers the last 24h of ledger flow and updates the price against
// the given fiat reserves. The current price is used as reference.
func (s *Service) Repeg(ctx context.Context, reservesFiat float64) (*models.PriceUpdate, error) {
	if s.flows == nil {
		return nil, fmt.Errorf("repeg requires a flow source")
	}
	state, err := s.GetCurrentPrice(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := s.flows.FlowStats(ctx, s.clock.Now().Add(-flowWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger flow stats: %w", err)
	}

	return s.UpdatePrice(ctx, models.PriceInputs{
		ReservesFiat:     reservesFiat,
		NcrOutstanding:   stats.Outstanding.InexactFloat64(),
		ReferencePrice:   state.CurrentPrice,
		NetMint24h:       stats.NetMint.InexactFloat64(),
		NetBurn24h:       stats.NetBurn.InexactFloat64(),
		NetRedemption24h: stats.NetRedemption.InexactFloat64(),
	})
}

func (s *Service) loadState(ctx context.Context, q store.Querier) (*models.MarketState, error) {
	now := s.clock.Now()
	if _, err := q.ExecContext(ctx, queryEnsureMarketState, s.params.BasePrice, s.params.BasePrice,
		s.params.TargetCoverage, now); err != nil {
		return nil, fmt.Errorf("failed to create market state: %w", err)
	}

	var state models.MarketState
	err := q.QueryRowContext(ctx, queryGetMarketState).Scan(&state.CurrentPrice, &state.LastPrice,
		&state.EmaCoverage, &state.EmaFlowIndex, &state.LastUpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get market state: %w", err)
	}
	return &state, nil
}

// RepegDue reports whether minInterval has passed since the last repeg. A
// state that was only initialized and never repegged is always due.
func (s *Service) RepegDue(ctx context.Context, minInterval time.Duration) (bool, error) {
	state, err := s.GetCurrentPrice(ctx)
	if err != nil {
		return false, err
	}
	if s.untouched(state) {
		return true, nil
	}
	return s.clock.Now().Sub(state.LastUpdatedAt) >= minInterval, nil
}

func (s *Service) untouched(state *models.MarketState) bool {
	return state.CurrentPrice == s.params.BasePrice &&
		state.LastPrice == s.params.BasePrice &&
		state.EmaCoverage == s.params.TargetCoverage &&
		state.EmaFlowIndex == 0
}
