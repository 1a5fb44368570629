package receiver

import (
	"errors"

	"github.com/kstaniek/dgram-xfer/internal/metrics"
)

// Sentinel errors used for wrapping so callers can classify via errors.Is.
var (
	ErrListen     = errors.New("listen")
	ErrBind       = errors.New("bind")
	ErrDecodeAddr = errors.New("decode_addr")
	ErrSocketRead = errors.New("socket_read")
)

// mapErrToMetric maps wrapped sentinel errors to metrics labels.
func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrListen):
		return metrics.ErrListen
	case errors.Is(err, ErrBind):
		return metrics.ErrBind
	case errors.Is(err, ErrDecodeAddr):
		return metrics.ErrDecodeAddr
	case errors.Is(err, ErrSocketRead):
		return metrics.ErrSocketRead
	default:
		return "other"
	}
}
