package domain

import (
	"fmt"
	"strings"
)

// Zone is the logical location of an item, encoded by key prefix.
type Zone string

// Zones an item can occupy. An item exists in exactly one at any time.
const (
	ZoneInbound    Zone = "inbound"
	ZoneStaging    Zone = "staging"
	ZoneQuarantine Zone = "quarantine"
	ZoneEnriched   Zone = "enriched"
	ZoneCurated    Zone = "curated"

	// ZoneUnknown is returned for keys outside every configured prefix.
	ZoneUnknown Zone = ""
)

// AllZones lists every zone in pipeline order.
func AllZones() []Zone {
	return []Zone{ZoneInbound, ZoneStaging, ZoneQuarantine, ZoneEnriched, ZoneCurated}
}

// String returns the string representation.
func (z Zone) String() string {
	if z == ZoneUnknown {
		return "unknown"
	}
	return string(z)
}

// Prefixes maps each zone to its key prefix.
type Prefixes struct {
	Inbound    string `mapstructure:"inbound"`
	Staging    string `mapstructure:"staging"`
	Quarantine string `mapstructure:"quarantine"`
	Enriched   string `mapstructure:"enriched"`
	Curated    string `mapstructure:"curated"`
}

// DefaultPrefixes returns the default raw bucket layout.
func DefaultPrefixes() Prefixes {
	return Prefixes{
		Inbound:    "raw/",
		Staging:    "staging/",
		Quarantine: "quarantine/",
		Enriched:   "enriched/",
		Curated:    "curated/",
	}
}

// Of returns the prefix for a zone.
func (p Prefixes) Of(z Zone) string {
	switch z {
	case ZoneInbound:
		return p.Inbound
	case ZoneStaging:
		return p.Staging
	case ZoneQuarantine:
		return p.Quarantine
	case ZoneEnriched:
		return p.Enriched
	case ZoneCurated:
		return p.Curated
	default:
		return ""
	}
}

// ZoneOf resolves the zone a key lives in by longest matching prefix.
func (p Prefixes) ZoneOf(key string) Zone {
	best := ZoneUnknown
	bestLen := -1
	for _, z := range AllZones() {
		prefix := p.Of(z)
		if prefix == "" || !strings.HasPrefix(key, prefix) {
			continue
		}
		if len(prefix) > bestLen {
			best, bestLen = z, len(prefix)
		}
	}
	return best
}

// Relative strips the zone prefix from key. Keys outside every zone are
// returned unchanged and treated as relative to the inbound zone.
func (p Prefixes) Relative(key string) string {
	z := p.ZoneOf(key)
	if z == ZoneUnknown {
		return key
	}
	return strings.TrimPrefix(key, p.Of(z))
}

// Relocate computes the key an item would have in zone to.
// It is pure prefix substitution: the result depends only on key and the prefixes.
func (p Prefixes) Relocate(key string, to Zone) string {
	return p.Of(to) + p.Relative(key)
}

// Item is a logical unit of ingested data identified by its blob key.
type Item struct {
	Key  string
	Zone Zone
}

// NewItem resolves the zone of key against the prefixes.
func (p Prefixes) NewItem(key string) Item {
	return Item{Key: key, Zone: p.ZoneOf(key)}
}

// String returns a short description for logs.
func (i Item) String() string {
	return fmt.Sprintf("%s (%s)", i.Key, i.Zone)
}
