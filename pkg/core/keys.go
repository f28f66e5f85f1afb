package core

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/ed25519"
	"golang.org/x/crypto/pbkdf2"
)

const (
	mnemonicSalt       = "TON default seed"
	mnemonicIterations = 100000
)

// PrivateKeyFromSeed builds the wallet key from a 32 bytes hex seed.
func PrivateKeyFromSeed(seed string) (ed25519.PrivateKey, error) {
	b, err := hex.DecodeString(seed)
	if err != nil {
		return nil, err
	}
	if len(b) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be 32 bytes long")
	}
	return ed25519.NewKeyFromSeed(b), nil
}

// PrivateKeyFromMnemonic derives the wallet key the same way TON wallets do.
func PrivateKeyFromMnemonic(mnemonic string) (ed25519.PrivateKey, error) {
	words := strings.Fields(mnemonic)
	if len(words) != 24 {
		return nil, fmt.Errorf("mnemonic must contain 24 words, got %d", len(words))
	}
	mac := hmac.New(sha512.New, []byte(strings.Join(words, " ")))
	mac.Write(nil)
	entropy := mac.Sum(nil)
	seed := pbkdf2.Key(entropy, []byte(mnemonicSalt), mnemonicIterations, 64, sha512.New)
	return ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize]), nil
}
