package domain

import (
	"regexp"
	"strings"
)

// Pair is an ordered currency pair: a rate for the pair expresses how many
// units of Quote one unit of Base is worth.
type Pair struct {
	Base  string
	Quote string
}

var pairRe = regexp.MustCompile(`^[A-Z0-9]{2,5}/[A-Z0-9]{2,5}$`)

func NewPair(base, quote string) Pair {
	return Pair{
		Base:  strings.ToUpper(strings.TrimSpace(base)),
		Quote: strings.ToUpper(strings.TrimSpace(quote)),
	}
}

// ParsePair parses "BTC/USD" form. The boolean is false on malformed input.
func ParsePair(s string) (Pair, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !pairRe.MatchString(s) {
		return Pair{}, false
	}
	i := strings.IndexByte(s, '/')
	return Pair{Base: s[:i], Quote: s[i+1:]}, true
}

func (p Pair) Reverse() Pair { return Pair{Base: p.Quote, Quote: p.Base} }

func (p Pair) String() string { return p.Base + "/" + p.Quote }

// Key is the storage form, e.g. "BTC_USD".
func (p Pair) Key() string { return p.Base + "_" + p.Quote }
