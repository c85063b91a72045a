package service

import (
	"encoding/binary"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	transactionPrefix = "TXN"
	calendarPrefix    = "EVT"

	suffixLen = 6
)

// suffixSpace is 36^6, the number of distinct base36 suffixes.
const suffixSpace = 36 * 36 * 36 * 36 * 36 * 36

// newCorrelationID builds PREFIX-<unix millis>-<base36>, upper-cased.
// Not collision-proof; transaction ids are also unique in storage.
func newCorrelationID(prefix string, now time.Time) string {
	u := uuid.New()
	n := binary.BigEndian.Uint64(u[:8]) % suffixSpace
	suffix := strconv.FormatUint(n, 36)
	if pad := suffixLen - len(suffix); pad > 0 {
		suffix = strings.Repeat("0", pad) + suffix
	}
	return strings.ToUpper(prefix + "-" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + suffix)
}
