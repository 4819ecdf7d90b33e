package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/plantio/irrigation-engine/internal/model/messages"
)

const (
	// gainPerMin: moisture gained per minute while the valve is open (in [0..1]).
	gainPerMin = 0.006

	// defaultSeed when SoilGrids is unavailable.
	defaultSeed = 0.30

	// Single fetch at startup, never per tick.
	soilGridsURL = "https://rest.isric.org/soilgrids/v2.0/properties/query?lat=%f&lon=%f&property=wv0010"
)

// DataGenerator evolves a zone's soil moisture over time: it rises while the
// valve is open and decays while closed. Temperature follows a simple diurnal
// wave around a base value.
type DataGenerator struct {
	mu          sync.Mutex
	seeded      bool
	last        time.Time
	moisture    float64 // [0..1]
	decayPerMin float64
	baseTemp    float64 // °C at the daily mean
	httpClient  *http.Client
}

func NewDataGenerator(decayPerMin, baseTemp float64) *DataGenerator {
	return &DataGenerator{
		decayPerMin: math.Max(0, decayPerMin),
		baseTemp:    baseTemp,
		httpClient:  &http.Client{Timeout: 8 * time.Second},
	}
}

// SeedFromSoilGrids does a single startup fetch for a realistic initial
// moisture. Falls back to the default seed on any failure.
func (g *DataGenerator) SeedFromSoilGrids(ctx context.Context, lat, lon float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seeded {
		return
	}
	seed := defaultSeed
	if lat != 0 || lon != 0 {
		if m, err := g.fetchSoilMoisture(ctx, lat, lon); err == nil && m >= 0 {
			seed = m
		}
	}
	g.moisture = clamp01(seed)
	g.last = time.Now().UTC()
	g.seeded = true
}

// Next advances the internal state and returns a reading for the zone.
func (g *DataGenerator) Next(zoneID string, valveOpen bool) messages.SensorData {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UTC()
	if !g.seeded {
		g.moisture = defaultSeed
		g.last = now
		g.seeded = true
	}

	dtMin := now.Sub(g.last).Minutes()
	if dtMin < 0 {
		dtMin = 0
	}
	if valveOpen {
		g.moisture = clamp01(g.moisture + gainPerMin*dtMin)
	} else {
		g.moisture = clamp01(g.moisture - g.decayPerMin*dtMin)
	}
	g.last = now

	// Diurnal wave: coolest around 04:00, warmest around 16:00.
	hour := float64(now.Hour()) + float64(now.Minute())/60
	temp := g.baseTemp + 6*math.Sin((hour-10)/24*2*math.Pi)

	return messages.SensorData{
		ZoneID:      zoneID,
		Moisture:    math.Round(g.moisture * 100),
		Temperature: math.Round(temp*10) / 10,
		Timestamp:   now,
	}
}

func (g *DataGenerator) fetchSoilMoisture(ctx context.Context, lat, lon float64) (float64, error) {
	url := fmt.Sprintf(soilGridsURL, lat, lon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return -1, err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return -1, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return -1, fmt.Errorf("soilgrids status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return -1, err
	}

	var payload struct {
		Properties struct {
			Layers []struct {
				Depths []struct {
					Values struct {
						Mean *float64 `json:"mean"`
					} `json:"values"`
				} `json:"depths"`
			} `json:"layers"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return -1, err
	}
	for _, layer := range payload.Properties.Layers {
		for _, depth := range layer.Depths {
			if depth.Values.Mean != nil {
				// wv0010 is reported in 0.1 volumetric % units.
				return clamp01(*depth.Values.Mean / 1000), nil
			}
		}
	}
	return -1, errors.New("no mean value in soilgrids response")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
