package encryption

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// TransactionRecord is an encrypted transaction payload together with the
// SHA-256 of its plaintext, checked independently of the GCM tag.
type TransactionRecord struct {
	EncryptedPayload string `json:"encrypted_payload" yaml:"encrypted_payload"`
	IntegrityHash    string `json:"integrity_hash" yaml:"integrity_hash"`
}

var txnEncMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor deterministic enc mode: %v", err))
	}
	return em
}()

// EncryptTransactionString seals a raw transaction string, the form used by
// terminals that store pipe-delimited records.
func (e *Engine) EncryptTransactionString(data, alias string) (*TransactionRecord, error) {
	ct, err := e.Encrypt(data, alias)
	if err != nil {
		return nil, err
	}
	return &TransactionRecord{EncryptedPayload: ct, IntegrityHash: GenerateHash(data)}, nil
}

// DecryptTransactionString opens rec and verifies its hash. On mismatch the
// payload is discarded and ErrIntegrityMismatch returned.
func (e *Engine) DecryptTransactionString(rec *TransactionRecord, alias string) (string, error) {
	pt, err := e.Decrypt(rec.EncryptedPayload, alias)
	if err != nil {
		return "", err
	}
	if !VerifyHash(pt, rec.IntegrityHash) {
		e.metrics.RecordDecryptFailure(failureReason(ErrIntegrityMismatch))
		e.logger.Warn("transaction integrity check failed", "alias", alias)
		return "", ErrIntegrityMismatch
	}
	return pt, nil
}

// EncryptTransactionData encodes v as deterministic CBOR and seals it, so
// equal values always hash the same.
func (e *Engine) EncryptTransactionData(v any, alias string) (*TransactionRecord, error) {
	payload, err := txnEncMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	return e.EncryptTransactionString(string(payload), alias)
}

// DecryptTransactionData opens rec, verifies its hash and decodes into out.
// out is left untouched when verification fails.
func (e *Engine) DecryptTransactionData(rec *TransactionRecord, alias string, out any) error {
	payload, err := e.DecryptTransactionString(rec, alias)
	if err != nil {
		return err
	}
	if err := cbor.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("decode transaction: %w", err)
	}
	return nil
}
