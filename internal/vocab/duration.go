package vocab

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/himanishpuri/MusicWeaver/pkg/models"
)

// ParseDuration normalizes decimal ("1.5") or exact-fraction ("3/2") text
// to a quarter-length float.
func ParseDuration(text string) (float64, error) {
	s := strings.TrimSpace(text)

	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		r, ok := new(big.Rat).SetString(s)
		if !ok {
			return 0, fmt.Errorf("%w: malformed duration %q", models.ErrBadInput, text)
		}
		d, _ = r.Float64()
	}

	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return 0, fmt.Errorf("%w: duration %q out of range", models.ErrBadInput, text)
	}
	return d, nil
}
