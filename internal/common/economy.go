package common

import (
	"fmt"
	"os"
	"path/filepath"

	"citizen-economy-go/internal/abuse"
	"citizen-economy-go/internal/justice"
	"citizen-economy-go/internal/models"
	"citizen-economy-go/internal/treasury"

	"gopkg.in/yaml.v2"
)

// LoadEconomyParams reads the optional economy parameter file. Relative paths
// resolve against the working directory.
func LoadEconomyParams(economyFile string) (*models.EconomyParams, error) {
	var paramsPath string
	if filepath.IsAbs(economyFile) {
		paramsPath = economyFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		paramsPath = filepath.Join(wd, economyFile)
	}

	data, err := os.ReadFile(paramsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", economyFile, err)
	}
	return ParseEconomyParams(data)
}

func ParseEconomyParams(data []byte) (*models.EconomyParams, error) {
	var params models.EconomyParams
	if err := yaml.UnmarshalStrict(data, &params); err != nil {
		return nil, fmt.Errorf("unable to parse economy params: %w", err)
	}

	known := abuse.DefaultWeights()
	for eventType, weight := range params.AbuseWeights {
		if _, ok := known[models.AbuseEventType(eventType)]; !ok {
			return nil, fmt.Errorf("unknown abuse event type %q", eventType)
		}
		if weight < 0 {
			return nil, fmt.Errorf("abuse weight for %s must be non-negative", eventType)
		}
	}

	if params.Damping != nil {
		table := treasury.DampingTable{Rows: params.Damping.Rows, Overflow: params.Damping.Overflow}
		if err := table.Validate(); err != nil {
			return nil, fmt.Errorf("invalid damping table: %w", err)
		}
	}

	if params.JusticePolicy != nil {
		if err := justice.ValidatePolicy(params.JusticePolicy); err != nil {
			return nil, fmt.Errorf("invalid justice policy: %w", err)
		}
	}

	return &params, nil
}
