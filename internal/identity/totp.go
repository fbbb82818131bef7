package identity

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"time"
)

const (
	totpPeriod = 30 * time.Second
	totpDigits = 6
	// One step of clock drift is accepted in either direction.
	totpSkew = 1
)

// GenerateMFASecret returns a new base32-encoded TOTP secret.
func GenerateMFASecret() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}

// VerifyTOTP checks a 6-digit RFC 6238 code against the secret at the
// given instant.
func VerifyTOTP(secret, code string, now time.Time) bool {
	if len(code) != totpDigits {
		return false
	}
	key, err := base32Decode(secret)
	if err != nil {
		return false
	}
	counter := uint64(now.Unix()) / uint64(totpPeriod.Seconds())
	for i := -totpSkew; i <= totpSkew; i++ {
		if hotp(key, counter+uint64(int64(i))) == code {
			return true
		}
	}
	return false
}

func base32Decode(secret string) ([]byte, error) {
	return base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
}

func hotp(key []byte, counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff
	return fmt.Sprintf("%06d", value%1000000)
}
