package riskscore

import (
	"math"

	"github.com/markcheno/go-talib"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/config"
)

// Indicators are the volatility figures derived from recent candles.
type Indicators struct {
	ATRPct         float64 `json:"atr_pct"`          // ATR as percent of the last close
	RealizedVolPct float64 `json:"realized_vol_pct"` // stddev of 1-period percent returns
	BollingerWidth float64 `json:"bollinger_width"`  // (upper - lower) / middle
}

// ComputeIndicators derives the volatility inputs from raw candle series via
// go-talib. Series are oldest first and must be the same length. Returns nil
// when the series is shorter than the longest warm-up or the values are
// degenerate (non-positive close, NaN tail).
func ComputeIndicators(highs, lows, closes []float64, cfg config.ScoringConfig) *Indicators {
	n := len(closes)
	if n == 0 || len(highs) != n || len(lows) != n {
		return nil
	}
	need := cfg.ATRPeriod + 1
	if v := cfg.RealizedVolPeriod + 1; v > need {
		need = v
	}
	if cfg.BollingerPeriod > need {
		need = cfg.BollingerPeriod
	}
	if n < need {
		return nil
	}

	lastClose := closes[n-1]
	if lastClose <= 0 {
		return nil
	}

	atr := talib.Atr(highs, lows, closes, cfg.ATRPeriod)
	returns := talib.Roc(closes, 1)
	vol := talib.StdDev(returns, cfg.RealizedVolPeriod, 1.0)
	upper, middle, lower := talib.BBands(closes, cfg.BollingerPeriod, cfg.BollingerStdDev, cfg.BollingerStdDev, 0)

	lastATR := atr[len(atr)-1]
	lastVol := vol[len(vol)-1]
	lastUpper := upper[len(upper)-1]
	lastMiddle := middle[len(middle)-1]
	lastLower := lower[len(lower)-1]
	if math.IsNaN(lastATR) || math.IsNaN(lastVol) || math.IsNaN(lastMiddle) || lastMiddle <= 0 {
		return nil
	}

	return &Indicators{
		ATRPct:         lastATR / lastClose * 100,
		RealizedVolPct: lastVol,
		BollingerWidth: (lastUpper - lastLower) / lastMiddle,
	}
}
