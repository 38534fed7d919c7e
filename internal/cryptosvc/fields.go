package cryptosvc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// encryptedMarkerSuffix flags a record field as carrying envelope
// ciphertext instead of its plain value.
const encryptedMarkerSuffix = "_encrypted"

// EncryptFields replaces each named field of the record with its
// envelope ciphertext (base64 of the serialized envelope) and sets the
// companion marker. Fields absent from the record are skipped.
func (s *Service) EncryptFields(ctx context.Context, record map[string]interface{}, fields []string, bindingContext map[string]string) error {
	for _, field := range fields {
		value, ok := record[field]
		if !ok {
			continue
		}

		plaintext, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to serialize field %s: %w", field, err)
		}

		envelope, err := s.Encrypt(ctx, plaintext, bindingContext)
		if err != nil {
			return err
		}

		packed, err := json.Marshal(envelope)
		if err != nil {
			return fmt.Errorf("failed to pack envelope for field %s: %w", field, err)
		}

		record[field] = base64.StdEncoding.EncodeToString(packed)
		record[field+encryptedMarkerSuffix] = true
	}
	return nil
}

// DecryptFields reverses EncryptFields for fields carrying the marker.
// A field that fails to decrypt is left in its encrypted form with the
// marker intact: one bad field must not take down the whole record read
// path.
func (s *Service) DecryptFields(ctx context.Context, record map[string]interface{}, fields []string, bindingContext map[string]string) {
	for _, field := range fields {
		marked, _ := record[field+encryptedMarkerSuffix].(bool)
		if !marked {
			continue
		}

		encoded, ok := record[field].(string)
		if !ok {
			s.logger.Warn("field %s marked encrypted but not a string; leaving as-is", field)
			continue
		}

		packed, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			s.logger.Warn("field %s has unparsable ciphertext; leaving encrypted", field)
			continue
		}

		var envelope Envelope
		if err := json.Unmarshal(packed, &envelope); err != nil {
			s.logger.Warn("field %s has unparsable envelope; leaving encrypted", field)
			continue
		}

		plaintext, err := s.Decrypt(ctx, &envelope, bindingContext)
		if err != nil {
			s.logger.Warn("field %s failed to decrypt; leaving encrypted", field)
			continue
		}

		var value interface{}
		if err := json.Unmarshal(plaintext, &value); err != nil {
			s.logger.Warn("field %s decrypted to unparsable value; leaving encrypted", field)
			continue
		}

		record[field] = value
		delete(record, field+encryptedMarkerSuffix)
	}
}
