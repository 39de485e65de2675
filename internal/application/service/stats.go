package service

import "time"

type LookupStats struct {
	Mode string
	Ms   float64
}

type WarmStats struct {
	Warmed int
	Failed int
	Ms     float64
}

func convertToMs(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}
