package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader заголовок с подписью вебхука.
const SignatureHeader = "X-Billing-Signature"

var (
	// ErrSignatureMissing заголовок пуст или не содержит t и v1.
	ErrSignatureMissing = errors.New("signature header missing or malformed")
	// ErrSignatureMismatch подпись не совпадает.
	ErrSignatureMismatch = errors.New("signature mismatch")
	// ErrSignatureExpired метка времени вне допустимого окна.
	ErrSignatureExpired = errors.New("signature timestamp outside tolerance")
)

// Sign вычисляет значение заголовка подписи "t=<unix>,v1=<hex>".
func Sign(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", ts, computeMAC(payload, secret, ts))
}

func computeMAC(payload []byte, secret, ts string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature проверяет заголовок подписи. Допускается несколько v1 (при
// ротации секрета); достаточно совпадения одной. tolerance <= 0 отключает
// проверку времени.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	var (
		ts   string
		sigs []string
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == "" || len(sigs) == 0 || secret == "" {
		return ErrSignatureMissing
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrSignatureMissing
	}

	expected := []byte(computeMAC(payload, secret, ts))
	matched := false
	for _, s := range sigs {
		if hmac.Equal(expected, []byte(s)) {
			matched = true
			break
		}
	}
	if !matched {
		return ErrSignatureMismatch
	}

	if tolerance > 0 {
		diff := now.Sub(time.Unix(sec, 0))
		if diff < 0 {
			diff = -diff
		}
		if diff > tolerance {
			return ErrSignatureExpired
		}
	}
	return nil
}
