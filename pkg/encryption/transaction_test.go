package encryption

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payment struct {
	Phone     string `cbor:"phone"`
	AmountRWF int64  `cbor:"amount"`
	Reference string `cbor:"ref"`
}

func TestTransactionString_RoundTrip(t *testing.T) {
	e, _ := newTestEngine(t)

	rec, err := e.EncryptTransactionString(sampleTxn, DefaultKeyAlias)
	require.NoError(t, err)
	assert.Equal(t, GenerateHash(sampleTxn), rec.IntegrityHash)

	got, err := e.DecryptTransactionString(rec, DefaultKeyAlias)
	require.NoError(t, err)
	assert.Equal(t, sampleTxn, got)
}

func TestTransactionString_HashMismatchDiscardsPayload(t *testing.T) {
	t.Log("A valid ciphertext paired with the wrong hash must be reported untrustworthy")
	e, _ := newTestEngine(t)

	rec, err := e.EncryptTransactionString(sampleTxn, DefaultKeyAlias)
	require.NoError(t, err)
	swapped, err := e.EncryptTransactionString("+250788000000|99999|TXN-001", DefaultKeyAlias)
	require.NoError(t, err)

	forged := &TransactionRecord{EncryptedPayload: swapped.EncryptedPayload, IntegrityHash: rec.IntegrityHash}
	got, err := e.DecryptTransactionString(forged, DefaultKeyAlias)
	assert.ErrorIs(t, err, ErrIntegrityMismatch)
	assert.Empty(t, got)
}

func TestTransactionString_TamperedPayload(t *testing.T) {
	e, _ := newTestEngine(t)
	rec, err := e.EncryptTransactionString(sampleTxn, DefaultKeyAlias)
	require.NoError(t, err)

	rec.EncryptedPayload = tamper(rec.EncryptedPayload, 20)
	_, err = e.DecryptTransactionString(rec, DefaultKeyAlias)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestTransactionData_RoundTrip(t *testing.T) {
	e, _ := newTestEngine(t)
	in := payment{Phone: "+250788000000", AmountRWF: 12500, Reference: "TXN-001"}

	rec, err := e.EncryptTransactionData(in, DefaultKeyAlias)
	require.NoError(t, err)

	var out payment
	require.NoError(t, e.DecryptTransactionData(rec, DefaultKeyAlias, &out))
	assert.Equal(t, in, out)
}

func TestTransactionData_DeterministicHash(t *testing.T) {
	t.Log("Equal values must hash equally regardless of map iteration order")
	e, _ := newTestEngine(t)
	a := map[string]any{"phone": "+250788000000", "amount": 12500, "ref": "TXN-001"}
	b := map[string]any{"ref": "TXN-001", "amount": 12500, "phone": "+250788000000"}

	ra, err := e.EncryptTransactionData(a, DefaultKeyAlias)
	require.NoError(t, err)
	rb, err := e.EncryptTransactionData(b, DefaultKeyAlias)
	require.NoError(t, err)
	assert.Equal(t, ra.IntegrityHash, rb.IntegrityHash)
	assert.NotEqual(t, ra.EncryptedPayload, rb.EncryptedPayload)
}

func TestTransactionData_MismatchLeavesOutputUntouched(t *testing.T) {
	e, _ := newTestEngine(t)
	rec, err := e.EncryptTransactionData(payment{Phone: "+250788000000", AmountRWF: 12500, Reference: "TXN-001"}, DefaultKeyAlias)
	require.NoError(t, err)
	rec.IntegrityHash = GenerateHash("something else")

	out := payment{Reference: "untouched"}
	err = e.DecryptTransactionData(rec, DefaultKeyAlias, &out)
	assert.ErrorIs(t, err, ErrIntegrityMismatch)
	assert.Equal(t, payment{Reference: "untouched"}, out)
}
