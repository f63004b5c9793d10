package telegram

import "crypto/subtle"

// SecretHeader carries the webhook secret on every delivery.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// VerifySecret compares a delivered secret with the configured one in
// constant time. An empty configured secret accepts every delivery.
func VerifySecret(got, want string) bool {
	if want == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
