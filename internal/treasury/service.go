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

package treasury

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"citizen-economy-go/internal/clock"
	"citizen-economy-go/internal/database"
	"citizen-economy-go/internal/lock"
	"citizen-economy-go/internal/models"
	"citizen-economy-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const dayLayout = "2006-01-02"

// Cap outcome reasons. An empty reason means the damping table applied.
const (
	ReasonNonPositive = "non_positive_amount"
	ReasonPanicMode   = "panic_mode"
	ReasonDust        = "below_minimum_unit"
)

var minUnit = decimal.RequireFromString("0.01")

const (
	queryEnsureStat = `
		INSERT OR IGNORE INTO daily_treasury_stats (day, limit_ncr, issued_ncr, version, created_at, updated_at)
		VALUES (?, ?, '0', 1, ?, ?)`

	queryGetStat = `
		SELECT day, limit_ncr, issued_ncr, version, created_at, updated_at
		FROM daily_treasury_stats
		WHERE day = ?`

	queryUpdateIssued = `
		UPDATE daily_treasury_stats
		SET issued_ncr = ?, version = version + 1, updated_at = ?
		WHERE day = ? AND version = ?`
)

// DampingTable maps the projected load ratio to a mint multiplier. Rows are
// checked in order; loads above the last row use Overflow.
type DampingTable struct {
	Rows     []models.DampingRow `yaml:"rows"`
	Overflow float64             `yaml:"overflow"`
}

func DefaultDampingTable() DampingTable {
	return DampingTable{
		Rows: []models.DampingRow{
			{MaxLoad: 0.70, Multiplier: 1.00},
			{MaxLoad: 0.85, Multiplier: 0.80},
			{MaxLoad: 0.95, Multiplier: 0.60},
			{MaxLoad: 1.00, Multiplier: 0.30},
			{MaxLoad: 1.10, Multiplier: 0.10},
		},
		Overflow: 0.05,
	}
}

// Validate checks that loads increase and multipliers never increase.
func (t DampingTable) Validate() error {
	if len(t.Rows) == 0 {
		return store.Invalid("damping table has no rows")
	}
	prev := models.DampingRow{MaxLoad: 0, Multiplier: 1}
	for i, row := range t.Rows {
		if row.MaxLoad <= prev.MaxLoad && i > 0 {
			return store.Invalid("damping row %d max load %v is not increasing", i, row.MaxLoad)
		}
		if row.Multiplier < 0 || row.Multiplier > prev.Multiplier {
			return store.Invalid("damping row %d multiplier %v is not non-increasing", i, row.Multiplier)
		}
		prev = row
	}
	if t.Overflow < 0 || t.Overflow > prev.Multiplier {
		return store.Invalid("damping overflow multiplier %v is not non-increasing", t.Overflow)
	}
	return nil
}

func (t DampingTable) Multiplier(loadRatio float64) float64 {
	for _, row := range t.Rows {
		if loadRatio <= row.MaxLoad {
			return row.Multiplier
		}
	}
	return t.Overflow
}

// DayKey is the UTC calendar day of t.
func DayKey(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// Service enforces the system-wide daily mint budget.
type Service struct {
	db         *database.Service
	locker     lock.KeyLocker
	clock      clock.Clock
	dailyLimit decimal.Decimal
	table      DampingTable
}

func NewService(db *database.Service, locker lock.KeyLocker, clk clock.Clock, dailyLimit decimal.Decimal, table DampingTable) *Service {
	return &Service{
		db:         db,
		locker:     locker,
		clock:      clk,
		dailyLimit: dailyLimit,
		table:      table,
	}
}

// Today returns the day key ApplyCap would use now.
func (s *Service) Today() string {
	return DayKey(s.clock.Now())
}

// ApplyCap damps preNcr against today's budget in its own transaction.
func (s *Service) ApplyCap(ctx context.Context, preNcr decimal.Decimal) (*models.CapResult, error) {
	day := s.Today()
	release, err := s.locker.Acquire(ctx, lock.TreasuryDayKey(day))
	if err != nil {
		return nil, fmt.Errorf("failed to acquire treasury lock: %w", err)
	}
	defer release()

	var result *models.CapResult
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		result, err = s.ApplyCapTx(ctx, tx, day, preNcr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ApplyCapTx damps preNcr against day's budget inside the caller's unit of
// work. The caller holds the day's treasury lock.
func (s *Service) ApplyCapTx(ctx context.Context, q store.Querier, day string, preNcr decimal.Decimal) (*models.CapResult, error) {
	result := &models.CapResult{
		Day:      day,
		PreNcr:   preNcr,
		FinalNcr: decimal.Zero,
	}
	if !preNcr.IsPositive() {
		result.Reason = ReasonNonPositive
		return result, nil
	}

	stat, err := s.loadStat(ctx, q, day)
	if err != nil {
		return nil, err
	}
	result.LimitNcr = stat.LimitNcr
	result.IssuedNcr = stat.IssuedNcr

	if !stat.LimitNcr.IsPositive() {
		zap.L().Warn("Treasury cap in panic mode", zap.String("day", day), zap.String("limit", stat.LimitNcr.String()))
		result.Reason = ReasonPanicMode
		return result, nil
	}

	projected := stat.IssuedNcr.Add(preNcr)
	result.LoadRatio = projected.Div(stat.LimitNcr).InexactFloat64()
	result.Multiplier = s.table.Multiplier(result.LoadRatio)

	final := preNcr.Mul(decimal.NewFromFloat(result.Multiplier)).Round(2)
	if final.LessThan(minUnit) {
		result.Reason = ReasonDust
		return result, nil
	}
	result.FinalNcr = final

	issued := stat.IssuedNcr.Add(final)
	now := s.clock.Now()
	res, err := q.ExecContext(ctx, queryUpdateIssued, issued.String(), now, day, stat.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to update issued ncr: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("treasury stat update failed - %w", store.ErrConflict)
	}
	result.IssuedNcr = issued

	zap.L().Info("Treasury cap applied",
		zap.String("day", day),
		zap.String("pre_ncr", preNcr.String()),
		zap.String("final_ncr", final.String()),
		zap.Float64("load_ratio", result.LoadRatio),
		zap.Float64("multiplier", result.Multiplier),
		zap.String("issued_ncr", issued.String()))

	return result, nil
}

// GetDailyStat returns the stat row of day, creating it with today's limit.
func (s *Service) GetDailyStat(ctx context.Context, day string) (*models.DailyTreasuryStat, error) {
	if _, err := time.Parse(dayLayout, day); err != nil {
		return nil, store.Invalid("day must be YYYY-MM-DD, got %q", day)
	}
	return s.loadStat(ctx, s.db.DB(), day)
}

func (s *Service) loadStat(ctx context.Context, q store.Querier, day string) (*models.DailyTreasuryStat, error) {
	now := s.clock.Now()
	if _, err := q.ExecContext(ctx, queryEnsureStat, day, s.dailyLimit.String(), now, now); err != nil {
		return nil, fmt.Errorf("failed to create daily treasury stat: %w", err)
	}

	var stat models.DailyTreasuryStat
	var limitStr, issuedStr string
	err := q.QueryRowContext(ctx, queryGetStat, day).Scan(&stat.Day, &limitStr, &issuedStr,
		&stat.Version, &stat.CreatedAt, &stat.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily treasury stat: %w", err)
	}
	if stat.LimitNcr, err = database.ParseDecimal("limit_ncr", limitStr); err != nil {
		return nil, err
	}
	if stat.IssuedNcr, err = database.ParseDecimal("issued_ncr", issuedStr); err != nil {
		return nil, err
	}
	return &stat, nil
}
