package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const DefaultRateLimitPath = "config/ratelimits.yaml"

// Endpoint names used as rate limit keys.
const (
	EndpointMemeVote   = "meme_vote"
	EndpointMemeSubmit = "meme_submit"
	EndpointSTKPush    = "stk_push"
)

// DefaultRateLimits are the hourly thresholds used when no config file
// exists or it leaves an endpoint out.
var DefaultRateLimits = map[string]int{
	EndpointMemeVote:   20,
	EndpointMemeSubmit: 5,
	EndpointSTKPush:    3,
}

type rateLimitFile struct {
	RateLimits map[string]int `yaml:"rateLimits"`
}

// LoadRateLimits reads per-endpoint hourly thresholds from a YAML file:
//
//	rateLimits:
//	  meme_vote: 20
//	  meme_submit: 5
//
// A missing file yields the defaults.
func LoadRateLimits(path string) (map[string]int, error) {
	limits := make(map[string]int, len(DefaultRateLimits))
	for endpoint, limit := range DefaultRateLimits {
		limits[endpoint] = limit
	}

	if path == "" {
		path = DefaultRateLimitPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return limits, nil
		}
		return nil, fmt.Errorf("failed to read rate limit config %s: %w", path, err)
	}

	var file rateLimitFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rate limit config %s: %w", path, err)
	}
	for endpoint, limit := range file.RateLimits {
		if limit <= 0 {
			return nil, fmt.Errorf("rate limit for %q must be positive, got %d", endpoint, limit)
		}
		limits[endpoint] = limit
	}
	return limits, nil
}
