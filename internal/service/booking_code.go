package service

import (
	"crypto/rand"
	"math/big"
	"strings"

	"selefli/internal/models"
)

const (
	bookingCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	bookingCodeLength   = 6
	bookingCodeAttempts = 5
)

// randomBookingCode returns SF- followed by six random characters of [A-Z0-9].
func randomBookingCode() (string, error) {
	var b strings.Builder
	b.WriteString(models.BookingCodePrefix)
	max := big.NewInt(int64(len(bookingCodeAlphabet)))
	for i := 0; i < bookingCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(bookingCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// fallbackBookingCode derives a code from the booking id.
func fallbackBookingCode(bookingID string) string {
	var b strings.Builder
	b.WriteString(models.BookingCodePrefix)
	for _, r := range strings.ToUpper(bookingID) {
		if b.Len() == len(models.BookingCodePrefix)+bookingCodeLength {
			break
		}
		if strings.ContainsRune(bookingCodeAlphabet, r) {
			b.WriteRune(r)
		}
	}
	for b.Len() < len(models.BookingCodePrefix)+bookingCodeLength {
		b.WriteByte('0')
	}
	return b.String()
}
