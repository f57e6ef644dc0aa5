package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"yieldledger/native/accrual"
)

var errNilSnapshot = errors.New("exports: snapshot required")

// ClaimsCSV builds a CSV export of the live claims in snap and returns the
// serialised data alongside a SHA-256 checksum of the payload.
func ClaimsCSV(snap *accrual.Snapshot) ([]byte, string, error) {
	if snap == nil {
		return nil, "", errNilSnapshot
	}
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	header := []string{"claim_id", "mint_hour", "principal", "trust_share", "yield", "watermark", "taken_at"}
	if err := writer.Write(header); err != nil {
		return nil, "", err
	}
	takenAt := takenAt(snap)
	for _, view := range snap.Claims {
		if view == nil {
			continue
		}
		record := []string{
			fmt.Sprintf("%d", view.Claim.ID),
			fmt.Sprintf("%d", view.Claim.MintHour),
			fmt.Sprintf("%d", view.Claim.Principal),
			view.Claim.TrustShare.String(),
			view.Yield.String(),
			fmt.Sprintf("%d", view.Watermark),
			takenAt,
		}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}

// MintCSV exports the cumulative mint index, one row per hour.
func MintCSV(snap *accrual.Snapshot) ([]byte, string, error) {
	if snap == nil {
		return nil, "", errNilSnapshot
	}
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	if err := writer.Write([]string{"hour", "cumulative"}); err != nil {
		return nil, "", err
	}
	for _, entry := range snap.Mint {
		if err := writer.Write([]string{fmt.Sprintf("%d", entry.Hour), fmt.Sprintf("%d", entry.Cumulative)}); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}

func takenAt(snap *accrual.Snapshot) string {
	at := snap.TakenAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return at.UTC().Format(time.RFC3339Nano)
}
