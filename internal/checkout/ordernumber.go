package checkout

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// OrderNumberPrefix starts every customer-facing order number.
const OrderNumberPrefix = "ORD"

// NumberGenerator produces a candidate order number for the given instant.
type NumberGenerator func(now time.Time) string

// GenerateOrderNumber renders ORD-YYMM-TTTTTTRRR where T are the low six
// digits of the unix millisecond clock and R a random three digit tail.
func GenerateOrderNumber(now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("%s-%s-%06d%03d",
		OrderNumberPrefix,
		now.Format("0601"),
		now.UnixMilli()%1_000_000,
		rand.IntN(1000),
	)
}
