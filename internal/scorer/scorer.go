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

package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"time"
	"unicode/utf8"

	"citizen-economy-go/internal/store"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// Score sources.
const (
	SourceRemote    = "remote"
	SourceHeuristic = "heuristic"
	SourceExternal  = "external"
)

// Request is the proof handed to a scorer.
type Request struct {
	UserId       string `json:"user_id"`
	QuestUuid    string `json:"quest_uuid"`
	ProofType    string `json:"proof_type"`
	ProofRef     string `json:"proof_ref"`
	ProofContent string `json:"content"`
}

// Result is an AI quality score in [0, 100].
type Result struct {
	Score  float64
	Source string
}

type Scorer interface {
	Score(ctx context.Context, req Request) (Result, error)
}

func clampScore(score float64) float64 {
	return math.Max(0, math.Min(100, score))
}

// HTTPScorer calls a remote scoring API.
type HTTPScorer struct {
	client http.Client
	url    string
}

func NewHTTPScorer(url string) (*HTTPScorer, error) {
	if url == "" {
		return nil, fmt.Errorf("scorer url cannot be empty")
	}
	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}
	return &HTTPScorer{client: httpClient, url: url}, nil
}

func createCustomHttpClient() (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 10 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   5 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   30 * time.Second,
	}, nil
}

type scoreResponse struct {
	Score *float64 `json:"score"`
}

func (s *HTTPScorer) Score(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode score request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build score request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("%w: scorer request failed: %v", store.ErrExternalUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("%w: scorer returned %d: %s", store.ErrExternalUnavailable, resp.StatusCode, snippet)
	}

	var decoded scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, fmt.Errorf("%w: invalid scorer response: %v", store.ErrExternalUnavailable, err)
	}
	if decoded.Score == nil {
		return Result{}, fmt.Errorf("%w: scorer response has no score", store.ErrExternalUnavailable)
	}
	return Result{Score: clampScore(*decoded.Score), Source: SourceRemote}, nil
}

// Heuristic scores a proof by the length of its content.
type Heuristic struct{}

var lengthBuckets = []struct {
	minRunes int
	score    float64
}{
	{500, 85},
	{200, 75},
	{80, 60},
	{20, 40},
	{1, 15},
}

func (Heuristic) Score(ctx context.Context, req Request) (Result, error) {
	n := utf8.RuneCountInString(req.ProofContent)
	for _, b := range lengthBuckets {
		if n >= b.minRunes {
			return Result{Score: b.score, Source: SourceHeuristic}, nil
		}
	}
	return Result{Score: 0, Source: SourceHeuristic}, nil
}

// Fallback runs primary under a deadline and falls back to secondary on any
// error. Without a secondary the primary's error is returned.
type Fallback struct {
	primary   Scorer
	secondary Scorer
	timeout   time.Duration
}

func NewFallback(primary, secondary Scorer, timeout time.Duration) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, timeout: timeout}
}

func (f *Fallback) Score(ctx context.Context, req Request) (Result, error) {
	if f.primary != nil {
		callCtx := ctx
		if f.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, f.timeout)
			defer cancel()
		}
		result, err := f.primary.Score(callCtx, req)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if f.secondary == nil {
			return Result{}, err
		}
		zap.L().Warn("Scorer unavailable, using heuristic",
			zap.String("user_id", req.UserId),
			zap.String("quest_uuid", req.QuestUuid),
			zap.Error(err))
	}
	if f.secondary == nil {
		return Result{}, fmt.Errorf("%w: no scorer configured", store.ErrExternalUnavailable)
	}
	return f.secondary.Score(ctx, req)
}
