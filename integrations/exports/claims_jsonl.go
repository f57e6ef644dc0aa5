package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"yieldledger/native/accrual"
)

// ClaimsJSONL builds a JSON Lines export of the live claims in snap and
// returns the serialised payload alongside a checksum.
func ClaimsJSONL(snap *accrual.Snapshot) ([]byte, string, error) {
	if snap == nil {
		return nil, "", errNilSnapshot
	}
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	takenAt := takenAt(snap)
	for _, view := range snap.Claims {
		if view == nil {
			continue
		}
		payload := map[string]interface{}{
			"claim_id":    view.Claim.ID,
			"mint_hour":   view.Claim.MintHour,
			"principal":   view.Claim.Principal,
			"trust_share": view.Claim.TrustShare.String(),
			"yield":       view.Yield.String(),
			"watermark":   view.Watermark,
			"taken_at":    takenAt,
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}
