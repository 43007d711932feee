package kraken

import (
	"bytes"
	"fmt"
	"text/tabwriter"
)

// PrettyPrint renders the book with bids and asks side by side.
func (b Book) PrettyPrint(pair string) string {
	if len(b.Bids) == 0 && len(b.Asks) == 0 {
		return "Empty order book"
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 3, ' ', tabwriter.TabIndent)

	kind := "update"
	if b.Snapshot {
		kind = "snapshot"
	}
	fmt.Fprintf(w, "\nOrder Book %s for %s (Checksum: %s)\n", kind, pair, b.Checksum)
	fmt.Fprintf(w, "\n%s\t\t|\t%s\n", "BIDS", "ASKS")
	fmt.Fprintf(w, "%s\t|\t%s\n", "Price\tVolume", "Price\tVolume")
	fmt.Fprintf(w, "%s\t|\t%s\n", "-----\t------", "-----\t------")

	maxLen := len(b.Bids)
	if len(b.Asks) > maxLen {
		maxLen = len(b.Asks)
	}

	for i := 0; i < maxLen; i++ {
		bidStr, askStr := "\t", "\t"
		if i < len(b.Bids) {
			bidStr = fmt.Sprintf("%s\t%s", b.Bids[i].Price.String(), b.Bids[i].Volume.String())
		}
		if i < len(b.Asks) {
			askStr = fmt.Sprintf("%s\t%s", b.Asks[i].Price.String(), b.Asks[i].Volume.String())
		}
		fmt.Fprintf(w, "%s\t|\t%s\n", bidStr, askStr)
	}

	w.Flush()
	return buf.String()
}
