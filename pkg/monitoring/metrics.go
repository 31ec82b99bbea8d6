package monitoring

import (
	"math"
	"time"
)

// SyncPercent is height/networkHeight as a percentage rounded to two
// decimals. A node ahead of the network reports 99.
func SyncPercent(height, networkHeight int64) float64 {
	if networkHeight <= 0 {
		return 0
	}
	if height > networkHeight {
		return 99
	}
	percent := math.Round(float64(height)/float64(networkHeight)*100*100) / 100
	if percent > 100 {
		return 100
	}
	if percent < 0 {
		return 0
	}
	return percent
}

// GlobalHashRate estimates the network hash rate from the difficulty.
func GlobalHashRate(difficulty int64, blockTargetTime time.Duration) int64 {
	seconds := blockTargetTime.Seconds()
	if seconds <= 0 {
		return 0
	}
	return int64(math.Round(float64(difficulty) / seconds))
}

// Deviance is the distance between the local and network heights.
func Deviance(height, networkHeight int64) int64 {
	d := networkHeight - height
	if d < 0 {
		return -d
	}
	return d
}
