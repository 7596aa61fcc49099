package jwt

type Header struct {
	Type      string `json:"typ"`
	Algorithm string `json:"alg"`
}

type Claims struct {
	Issuer         string `json:"iss"` // service address
	Subject        string `json:"sub"` // identity address
	Audience       string `json:"aud"` // service fqdn
	SessionID      string `json:"jti"`
	AuthMethod     string `json:"mth"`
	IssuedAt       string `json:"iat"`
	ExpirationTime string `json:"exp"`
}
