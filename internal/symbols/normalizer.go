// Package symbols maps client facing pair spellings to the spellings the
// websocket server uses (BTC/USD <-> XBT/USD) and validates pairs.
package symbols

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultSynonyms maps common asset codes to the codes used on the wire.
var DefaultSynonyms = map[string]string{
	"BTC":  "XBT",
	"DOGE": "XDG",
}

var pairRegex = regexp.MustCompile(`^[A-Z0-9.]{2,}/[A-Z0-9]{2,}$`)

// Normalizer converts asset codes in both directions.
type Normalizer struct {
	toServer map[string]string
	toClient map[string]string
}

// NewNormalizer builds a Normalizer from a client->server synonym table.
// Keys are matched case-insensitively.
func NewNormalizer(synonyms map[string]string) *Normalizer {
	n := &Normalizer{
		toServer: make(map[string]string, len(synonyms)),
		toClient: make(map[string]string, len(synonyms)),
	}
	for client, server := range synonyms {
		n.toServer[strings.ToUpper(client)] = server
		n.toClient[strings.ToUpper(server)] = client
	}
	return n
}

// ToServer substitutes the base and quote assets of a "BASE/QUOTE" pair.
func (n *Normalizer) ToServer(pair string) string {
	return n.convert(pair, n.toServer)
}

// ToClient reverses ToServer. It is only a fallback: callers that know the
// spelling a subscriber used should report that one instead.
func (n *Normalizer) ToClient(pair string) string {
	return n.convert(pair, n.toClient)
}

func (n *Normalizer) convert(pair string, table map[string]string) string {
	base, quote, ok := strings.Cut(pair, "/")
	if !ok {
		return n.asset(pair, table)
	}
	return n.asset(base, table) + "/" + n.asset(quote, table)
}

func (n *Normalizer) asset(asset string, table map[string]string) string {
	if out, ok := table[strings.ToUpper(asset)]; ok {
		return out
	}
	return asset
}

// Validate checks that pair looks like a websocket pair, e.g. "XBT/USD".
func Validate(pair string) error {
	if !pairRegex.MatchString(pair) {
		return fmt.Errorf("invalid websocket pair %q, expected BASE/QUOTE in upper case", pair)
	}
	return nil
}
