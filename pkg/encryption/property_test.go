package encryption

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/momoterminal/termguard/pkg/keystore"
)

func TestEncryptionProperties(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping property tests in short mode")
	}
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	e := NewEngine(keystore.NewMemoryProvider())

	properties.Property("decrypt inverts encrypt for any string", prop.ForAll(
		func(s string) bool {
			ct, err := e.Encrypt(s, DefaultKeyAlias)
			if err != nil {
				return false
			}
			pt, err := e.Decrypt(ct, DefaultKeyAlias)
			return err == nil && pt == s
		},
		gen.AnyString(),
	))

	properties.Property("decrypt inverts encrypt for any bytes", prop.ForAll(
		func(b []byte) bool {
			ct, err := e.EncryptBytes(b, "bytes_key")
			if err != nil {
				return false
			}
			pt, err := e.DecryptBytes(ct, "bytes_key")
			return err == nil && bytes.Equal(pt, b)
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.Property("two encryptions of the same plaintext differ", prop.ForAll(
		func(s string) bool {
			a, errA := e.Encrypt(s, DefaultKeyAlias)
			b, errB := e.Encrypt(s, DefaultKeyAlias)
			return errA == nil && errB == nil && a != b
		},
		gen.AlphaString(),
	))

	properties.Property("verify hash accepts its own hash only", prop.ForAll(
		func(s, other string) bool {
			h := GenerateHash(s)
			return VerifyHash(s, h) && (s == other || !VerifyHash(other, h))
		},
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
