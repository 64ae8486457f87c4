package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for changing the algorithm later.
const (
	DomainRecord = "screentrace/record/v1"
	DomainInput  = "screentrace/input/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RecordID returns a content-addressed ID for a record. The line number is
// part of the identity, so two identical lines get different IDs.
func RecordID(r Record) (string, error) {
	obj := map[string]any{
		"line":    r.Line,
		"time":    r.Time,
		"code":    r.Name(),
		"subject": r.Subject,
		"details": r.Details,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("RecordID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRecord, canonical), nil
}

// Digest accumulates the accepted records of a run into a single
// content hash, used as the run's identity in reports and exports.
type Digest struct {
	ids []any
}

// Add folds a record into the digest.
func (d *Digest) Add(r Record) error {
	id, err := RecordID(r)
	if err != nil {
		return err
	}
	d.ids = append(d.ids, id)
	return nil
}

// Sum returns the hex digest of every record added so far.
func (d *Digest) Sum() string {
	canonical, err := MarshalCanonical(d.ids)
	if err != nil {
		// ids only ever holds strings.
		panic(err)
	}
	return hashWithDomain(DomainInput, canonical)
}
