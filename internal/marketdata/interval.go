package marketdata

import (
	"fmt"
	"strconv"
	"time"
)

// ParseInterval converts an exchange-style interval code ("1m", "4h",
// "1d") to a duration. The staleness rule for stored candles is
// age > 2 x interval; exactly 2 x interval still passes.
func ParseInterval(code string) (time.Duration, error) {
	if len(code) < 2 {
		return 0, fmt.Errorf("invalid interval %q", code)
	}

	unit := code[len(code)-1]
	n, err := strconv.Atoi(code[:len(code)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid interval %q", code)
	}

	switch unit {
	case 's':
		return time.Duration(n) * time.Second, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid interval unit in %q", code)
	}
}
