package discovery

import (
	"fmt"
	"strings"
)

// MinPrefixLength is the shortest identifier prefix Resolve will accept.
const MinPrefixLength = 8

// Resolve finds the single record whose Provider npub starts with
// prefix. Errors if prefix is too short, matches nothing, or matches
// more than one record.
func Resolve(records []Record, prefix string) (*Record, error) {
	if len(prefix) < MinPrefixLength {
		return nil, fmt.Errorf("prefix %q shorter than minimum %d characters", prefix, MinPrefixLength)
	}

	var match *Record
	for i := range records {
		if strings.HasPrefix(records[i].Offer.ProviderNpub, prefix) {
			if match != nil {
				return nil, fmt.Errorf("prefix %q matches more than one provider", prefix)
			}
			match = &records[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("prefix %q matches no known provider", prefix)
	}
	return match, nil
}
