package events

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// DeliveryKey returns a stable, fixed-length key identifying one logical
// delivery. The sender's delivery ID is preferred; without it the key is
// derived from kind, reference and user so that an identical redelivery maps
// to the same key.
func DeliveryKey(e *CanonicalEvent) string {
	var material string
	if e.DeliveryID != "" {
		material = "id\x00" + e.DeliveryID
	} else {
		material = "ev\x00" + string(e.Kind) + "\x00" + e.ExternalReferenceID + "\x00" + e.ExternalUserID
	}
	sum := blake2b.Sum256([]byte(material))
	return hex.EncodeToString(sum[:16])
}
