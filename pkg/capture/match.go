package capture

import (
	"context"
	"errors"
	"fmt"

	"nfscap.xyz/nfscap/internal/core"
	"nfscap.xyz/nfscap/internal/match"
)

// Match advances through the trace evaluating the compiled expression
// against each frame and returns the first match, leaving the iterator
// positioned just after it. maxIndex bounds the search when non-negative.
//
// No match is not an error: Match returns (nil, nil) after rewinding to the
// exact frame and stream state it started from, so a failed search has no
// observable side effect. Only fatal conditions (bad file, bad expression)
// return an error.
func (c *Capture) Match(ctx context.Context, expr string, maxIndex int) (*core.Pkt, error) {
	pred, err := match.Compile(expr)
	if err != nil {
		return nil, err
	}
	start := c.index
	for maxIndex < 0 || c.index < maxIndex {
		pkt, err := c.Next(ctx)
		if errors.Is(err, core.ErrEndOfTrace) {
			break
		}
		if err != nil {
			return nil, err
		}
		if pred.Eval(pkt) {
			c.log.WithField("frame", pkt.Record.Index).Debug("capture: match found")
			return pkt, nil
		}
	}
	if err := c.Rewind(start); err != nil {
		return nil, err
	}
	return nil, nil
}

// Escape returns data as a literal safe to embed inside a quoted match
// value, for querying on binary fields such as file handles.
func Escape(data []byte) string {
	return match.Escape(data)
}

// SrcExpr returns a match expression selecting frames sent from the given
// address, and DstExpr frames sent to it.
func SrcExpr(addr string) string {
	return fmt.Sprintf("IP.src == '%s'", addr)
}

func DstExpr(addr string) string {
	return fmt.Sprintf("IP.dst == '%s'", addr)
}
