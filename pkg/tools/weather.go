package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/LingByte/LingBridge/pkg/bridge"
	"github.com/LingByte/LingBridge/pkg/logger"
)

// WeatherService answers weather questions against the wttr.in JSON API.
// Responses are cached per location so repeated questions on busy lines do
// not hammer the upstream.
type WeatherService struct {
	baseURL string
	timeout time.Duration
	cache   *expirable.LRU[string, string]
}

// NewWeatherService creates a weather service with a TTL cache.
func NewWeatherService(baseURL string, timeout time.Duration, cacheSize int, cacheTTL time.Duration) *WeatherService {
	if baseURL == "" {
		baseURL = "https://wttr.in"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if cacheSize <= 0 {
		cacheSize = 256
	}
	return &WeatherService{
		baseURL: baseURL,
		timeout: timeout,
		cache:   expirable.NewLRU[string, string](cacheSize, nil, cacheTTL),
	}
}

type wttrResponse struct {
	CurrentCondition []struct {
		TempC         string `json:"temp_C"`
		FeelsLikeC    string `json:"FeelsLikeC"`
		Humidity      string `json:"humidity"`
		WindspeedKmph string `json:"windspeedKmph"`
		WeatherDesc   []struct {
			Value string `json:"value"`
		} `json:"weatherDesc"`
	} `json:"current_condition"`
	NearestArea []struct {
		AreaName []struct {
			Value string `json:"value"`
		} `json:"areaName"`
	} `json:"nearest_area"`
}

// Lookup returns a speakable weather summary for the location.
func (s *WeatherService) Lookup(ctx context.Context, location string) (string, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return "", fmt.Errorf("location is required")
	}

	key := strings.ToLower(location)
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var resp wttrResponse
	err := requests.
		URL(s.baseURL).
		Path("/" + url.PathEscape(location)).
		Param("format", "j1").
		ToJSON(&resp).
		Fetch(reqCtx)
	if err != nil {
		return "", fmt.Errorf("weather lookup for %q failed: %w", location, err)
	}

	summary, err := formatSpeech(location, &resp)
	if err != nil {
		return "", err
	}

	s.cache.Add(key, summary)
	logger.Debug("weather lookup completed",
		zap.String("location", location),
		zap.String("summary", summary))
	return summary, nil
}

// formatSpeech renders the API response as a sentence suitable for TTS.
func formatSpeech(location string, resp *wttrResponse) (string, error) {
	if len(resp.CurrentCondition) == 0 {
		return "", fmt.Errorf("no weather data for %q", location)
	}
	cond := resp.CurrentCondition[0]

	area := location
	if len(resp.NearestArea) > 0 && len(resp.NearestArea[0].AreaName) > 0 {
		area = resp.NearestArea[0].AreaName[0].Value
	}
	desc := ""
	if len(cond.WeatherDesc) > 0 {
		desc = strings.ToLower(cond.WeatherDesc[0].Value)
	}

	summary := fmt.Sprintf("In %s it is currently %s degrees", area, cond.TempC)
	if desc != "" {
		summary += " with " + desc
	}
	if cond.FeelsLikeC != "" && cond.FeelsLikeC != cond.TempC {
		summary += fmt.Sprintf(", feels like %s degrees", cond.FeelsLikeC)
	}
	if cond.Humidity != "" {
		summary += fmt.Sprintf(". Humidity is %s percent", cond.Humidity)
	}
	return summary + ".", nil
}

// Tool exposes the weather lookup to the realtime tool dispatcher.
func (s *WeatherService) Tool() bridge.Tool {
	return bridge.Tool{
		Name:        "get_weather",
		Description: "Get the current weather for a city. Use when the caller asks about weather conditions.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"location": {
					"type": "string",
					"description": "City name, e.g. Berlin or New York"
				}
			},
			"required": ["location"]
		}`),
		Execute: func(ctx context.Context, args json.RawMessage) (string, error) {
			var params struct {
				Location string `json:"location"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return "", fmt.Errorf("invalid weather arguments: %w", err)
			}
			return s.Lookup(ctx, params.Location)
		},
	}
}
