package session

import (
	"sort"
	"strings"

	"github.com/ocpp-csms/central-system/internal/ocppversion"
)

// Negotiator picks the highest-ranked OCPP version mutually supported by
// the CS and a connecting CP, given the CP's advertised subprotocol list.
type Negotiator struct {
	supported map[ocppversion.Version]bool
}

// NewNegotiator builds a Negotiator supporting exactly the given versions.
func NewNegotiator(versions ...ocppversion.Version) *Negotiator {
	n := &Negotiator{supported: make(map[ocppversion.Version]bool, len(versions))}
	for _, v := range versions {
		n.supported[v] = true
	}
	return n
}

// Register adds a version to the negotiable set. cmd/csms registers each
// version listed in the OCPP supported_versions config this way.
func (n *Negotiator) Register(v ocppversion.Version) {
	n.supported[v] = true
}

// Negotiate parses a comma-separated Sec-WebSocket-Protocol header value
// and returns the highest-ranked version present in both the requested
// list and the CS's supported set. ok is false if nothing matches.
func (n *Negotiator) Negotiate(requestedProtocols string) (ocppversion.Version, bool) {
	requested := strings.Split(requestedProtocols, ",")

	var candidates []ocppversion.Version
	for _, tok := range requested {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		v, ok := ocppversion.FromSubprotocol(tok)
		if !ok {
			continue
		}
		if n.supported[v] {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return ocppversion.Unknown, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		return rank(candidates[i]) > rank(candidates[j])
	})
	return candidates[0], true
}

func rank(v ocppversion.Version) int {
	switch v {
	case ocppversion.V21:
		return 3
	case ocppversion.V201:
		return 2
	case ocppversion.V16:
		return 1
	default:
		return 0
	}
}
