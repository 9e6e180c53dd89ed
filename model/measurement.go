package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Measurement is a current-conditions snapshot for one location.
type Measurement struct {
	Location  string    `json:"location"`
	AQI       int       `json:"aqi"`
	PM25      float64   `json:"pm25"`
	PM10      float64   `json:"pm10"`
	NO2       float64   `json:"no2"`
	O3        float64   `json:"o3"`
	Dominant  string    `json:"dominant"`
	Timestamp time.Time `json:"timestamp"`
}

// ForecastPoint is one hourly entry of the 24h forecast response.
type ForecastPoint struct {
	AQI       int       `json:"aqi"`
	PM25      float64   `json:"pm25"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
}

// ParseMeasurement decodes a current-conditions payload.
func ParseMeasurement(payload []byte) (*Measurement, error) {
	var m Measurement
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("decode measurement: %w", err)
	}
	return &m, nil
}

// Measurement decodes the state's payload as a current-conditions
// snapshot. States without data cannot be decoded.
func (s SyncState) Measurement() (*Measurement, error) {
	if !s.HasData() {
		return nil, errors.New("no payload to decode")
	}
	return ParseMeasurement(s.Data)
}

// Point decodes the frame's payload as an hourly forecast point.
func (f *Frame) Point() (*ForecastPoint, error) {
	if !f.Loaded() {
		return nil, fmt.Errorf("frame %d has no payload yet", f.HourIndex)
	}
	var p ForecastPoint
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode forecast point %d: %w", f.HourIndex, err)
	}
	return &p, nil
}
