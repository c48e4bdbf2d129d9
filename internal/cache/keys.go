package cache

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ResultCSVKey holds the CSV rendering of a stored Arrow result. Results
// never change once written.
func ResultCSVKey(resultID uuid.UUID) string {
	return fmt.Sprintf("spi:result:csv:%s", resultID)
}

// RateLimitKey counts a user's requests in the window starting at start.
func RateLimitKey(user string, start time.Time) string {
	return fmt.Sprintf("spi:ratelimit:%s:%d", user, start.Unix())
}
