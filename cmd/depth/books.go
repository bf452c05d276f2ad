package main

import (
	"fmt"
	"strings"

	"serumdepth/internal/book"
	"serumdepth/internal/common/timestamp"
)

func writeBook(b *strings.Builder, ts timestamp.Timestamp, market string, snap book.Snapshot, depth int) {
	side := strings.ToUpper(snap.Side.String())
	for _, l := range snap.L2(depth) {
		fmt.Fprintf(b, "B %d,%s,%s,%s,%s,%s,%d\n",
			ts.UnixMilli(),
			ts.Format(timeFormat),
			market,
			side,
			l.Price,
			l.Size,
			l.Orders)
	}
}
