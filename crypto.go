package contextly

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// IsWalletAddress reports whether s is a 0x-prefixed hex address.
func IsWalletAddress(s string) bool {
	return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

// NormalizeAddress lowercases an address for case-insensitive comparison
// and storage keys.
func NormalizeAddress(address string) string {
	return strings.ToLower(address)
}

// RecoverPersonalSigner recovers the address that produced signature over
// message with the personal_sign scheme (keccak256 of the EIP-191 prefixed
// text). The signature is 65 bytes hex, V either 0/1 or 27/28.
func RecoverPersonalSigner(message string, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		sig, err = hexutil.Decode("0x" + signature)
		if err != nil {
			return "", fmt.Errorf("signature is not hex: %v", err)
		}
	}
	if len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("invalid signature length: got %d, expected %d", len(sig), crypto.SignatureLength)
	}

	// wallets emit V as 27/28, Ecrecover wants 0/1
	recovery := make([]byte, crypto.SignatureLength)
	copy(recovery, sig)
	if recovery[64] >= 27 {
		recovery[64] -= 27
	}
	if recovery[64] > 1 {
		return "", fmt.Errorf("invalid recovery id: %d", sig[64])
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), recovery)
	if err != nil {
		return "", fmt.Errorf("ecrecover failed: %v", err)
	}

	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// SignBytes signs keccak256(data) with the service key. Used for session
// tokens; the counterpart check is VerifyBytes.
func SignBytes(data []byte, privatekey string) ([]byte, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privatekey, "0x"))
	if err != nil {
		return nil, err
	}
	return crypto.Sign(crypto.Keccak256(data), key)
}

// VerifyBytes checks that signature over keccak256(data) was produced by
// the key behind address.
func VerifyBytes(data []byte, signature []byte, address string) error {
	if len(signature) != crypto.SignatureLength {
		return fmt.Errorf("invalid signature length: %d", len(signature))
	}
	recovery := make([]byte, crypto.SignatureLength)
	copy(recovery, signature)
	if recovery[64] >= 27 {
		recovery[64] -= 27
	}
	pub, err := crypto.SigToPub(crypto.Keccak256(data), recovery)
	if err != nil {
		return fmt.Errorf("ecrecover failed: %v", err)
	}
	recovered := crypto.PubkeyToAddress(*pub).Hex()
	if NormalizeAddress(recovered) != NormalizeAddress(address) {
		return fmt.Errorf("signer mismatch: expected %s, got %s", address, recovered)
	}
	return nil
}

// PrivKeyToAddr derives the 0x address for a hex private key.
func PrivKeyToAddr(privatekey string) (string, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privatekey, "0x"))
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}
