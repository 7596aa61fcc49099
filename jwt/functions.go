package jwt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/contextly/contextly-ledger"
)

// Create creates a service signed session token. The signature is a
// secp256k1 signature over the base64url header and payload, so any
// holder of the service address can validate without the signing key.
func Create(claims Claims, privatekey string) (string, error) {
	header := Header{
		Type:      "JWT",
		Algorithm: "CTXLY",
	}
	headerStr, err := json.Marshal(header)
	if err != nil {
		return "", err
	}

	payloadStr, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	headerB64 := base64.RawURLEncoding.EncodeToString(headerStr)
	payloadB64 := base64.RawURLEncoding.EncodeToString(payloadStr)
	target := headerB64 + "." + payloadB64

	signatureBytes, err := contextly.SignBytes([]byte(target), privatekey)
	if err != nil {
		return "", err
	}
	signatureB64 := base64.RawURLEncoding.EncodeToString(signatureBytes)

	return target + "." + signatureB64, nil
}

// Validate checks the token signature against the issuing service address
// and rejects expired tokens. Revocation is checked separately against the
// session store; a valid token alone does not prove a live session.
func Validate(token string, serviceAddress string) (*Claims, error) {

	split := strings.Split(token, ".")
	if len(split) != 3 {
		return nil, fmt.Errorf("invalid token format")
	}

	var header Header
	headerBytes, err := base64.RawURLEncoding.DecodeString(split[0])
	if err != nil {
		return nil, err
	}
	err = json.Unmarshal(headerBytes, &header)
	if err != nil {
		return nil, err
	}

	if header.Type != "JWT" || header.Algorithm != "CTXLY" {
		return nil, fmt.Errorf("unsupported token type")
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(split[1])
	if err != nil {
		return nil, err
	}

	var claims Claims
	err = json.Unmarshal(payloadBytes, &claims)
	if err != nil {
		return nil, err
	}

	// check exp
	if claims.ExpirationTime != "" {
		exp, err := strconv.ParseInt(claims.ExpirationTime, 10, 64)
		if err != nil {
			return nil, err
		}
		now := time.Now().Unix()
		if exp < now {
			return nil, fmt.Errorf("token is already expired")
		}
	}

	// check signature
	signatureBytes, err := base64.RawURLEncoding.DecodeString(split[2])
	if err != nil {
		return nil, err
	}

	issuer := claims.Issuer
	if issuer == "" {
		issuer = serviceAddress
	}
	if contextly.NormalizeAddress(issuer) != contextly.NormalizeAddress(serviceAddress) {
		return nil, fmt.Errorf("unknown issuer: %s", claims.Issuer)
	}

	err = contextly.VerifyBytes([]byte(split[0]+"."+split[1]), signatureBytes, serviceAddress)
	if err != nil {
		return nil, err
	}

	return &claims, nil
}
