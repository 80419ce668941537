// Package envelope implements the signed-envelope wire format: a payload
// plus a detached signature, and the serialization of named public keys
// carried inside INVITE/RING/ACCEPT signaling payloads.
//
// This replaces the original's reflection-based signed-object handling
// (§9 "Reflection-based signed-object handling") with an explicit tagged
// format built on the octet buffer.
package envelope

import (
	"crypto/rsa"
	"crypto/x509"
	"fmt"

	"github.com/IrtazaS/kryptofon/internal/octet"
)

// Envelope pairs a payload with a detached signature over it.
type Envelope struct {
	Payload   []byte
	Signature []byte
}

// Encode serializes the envelope as: uint32 payload length, payload bytes,
// uint32 signature length, signature bytes.
func (e Envelope) Encode() []byte {
	buf := octet.Allocate(4 + len(e.Payload) + 4 + len(e.Signature))
	buf.WriteUint32(uint32(len(e.Payload)))
	buf.WriteBytes(e.Payload)
	buf.WriteUint32(uint32(len(e.Signature)))
	buf.WriteBytes(e.Signature)
	return buf.Bytes()
}

// Decode parses bytes produced by Encode.
func Decode(data []byte) (Envelope, error) {
	buf := octet.Wrap(data)
	payloadLen, err := buf.ReadUint32()
	if err != nil {
		return Envelope{}, fmt.Errorf("envelope: read payload length: %w", err)
	}
	payload, err := buf.ReadBytes(int(payloadLen))
	if err != nil {
		return Envelope{}, fmt.Errorf("envelope: read payload: %w", err)
	}
	sigLen, err := buf.ReadUint32()
	if err != nil {
		return Envelope{}, fmt.Errorf("envelope: read signature length: %w", err)
	}
	sig, err := buf.ReadBytes(int(sigLen))
	if err != nil {
		return Envelope{}, fmt.Errorf("envelope: read signature: %w", err)
	}
	return Envelope{Payload: payload, Signature: sig}, nil
}

// EncodeNamedPublicKey serializes an RSA public key plus its comment as:
// uint16 comment length, comment bytes (UTF-8), uint16 key-DER length, DER
// bytes (PKCS#1).
func EncodeNamedPublicKey(pub *rsa.PublicKey, comment string) []byte {
	der := x509.MarshalPKCS1PublicKey(pub)
	buf := octet.Allocate(2 + len(comment) + 2 + len(der))
	buf.WriteUint16(uint16(len(comment)))
	buf.WriteBytes([]byte(comment))
	buf.WriteUint16(uint16(len(der)))
	buf.WriteBytes(der)
	return buf.Bytes()
}

// EncodeNamedKeyPair serializes an RSA private key plus its comment as:
// uint16 comment length, comment bytes, uint16 key-DER length, DER bytes
// (PKCS#1 private key). The corresponding public key is recoverable from
// the private key and is not stored separately.
func EncodeNamedKeyPair(priv *rsa.PrivateKey, comment string) []byte {
	der := x509.MarshalPKCS1PrivateKey(priv)
	buf := octet.Allocate(2 + len(comment) + 2 + len(der))
	buf.WriteUint16(uint16(len(comment)))
	buf.WriteBytes([]byte(comment))
	buf.WriteUint16(uint16(len(der)))
	buf.WriteBytes(der)
	return buf.Bytes()
}

// DecodeNamedKeyPair parses bytes produced by EncodeNamedKeyPair.
func DecodeNamedKeyPair(data []byte) (*rsa.PrivateKey, string, error) {
	buf := octet.Wrap(data)
	commentLen, err := buf.ReadUint16()
	if err != nil {
		return nil, "", fmt.Errorf("envelope: read comment length: %w", err)
	}
	commentBytes, err := buf.ReadBytes(int(commentLen))
	if err != nil {
		return nil, "", fmt.Errorf("envelope: read comment: %w", err)
	}
	derLen, err := buf.ReadUint16()
	if err != nil {
		return nil, "", fmt.Errorf("envelope: read key length: %w", err)
	}
	der, err := buf.ReadBytes(int(derLen))
	if err != nil {
		return nil, "", fmt.Errorf("envelope: read key: %w", err)
	}
	priv, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, "", fmt.Errorf("envelope: parse private key: %w", err)
	}
	return priv, string(commentBytes), nil
}

// DecodeNamedPublicKey parses bytes produced by EncodeNamedPublicKey.
func DecodeNamedPublicKey(data []byte) (*rsa.PublicKey, string, error) {
	buf := octet.Wrap(data)
	commentLen, err := buf.ReadUint16()
	if err != nil {
		return nil, "", fmt.Errorf("envelope: read comment length: %w", err)
	}
	commentBytes, err := buf.ReadBytes(int(commentLen))
	if err != nil {
		return nil, "", fmt.Errorf("envelope: read comment: %w", err)
	}
	derLen, err := buf.ReadUint16()
	if err != nil {
		return nil, "", fmt.Errorf("envelope: read key length: %w", err)
	}
	der, err := buf.ReadBytes(int(derLen))
	if err != nil {
		return nil, "", fmt.Errorf("envelope: read key: %w", err)
	}
	pub, err := x509.ParsePKCS1PublicKey(der)
	if err != nil {
		return nil, "", fmt.Errorf("envelope: parse public key: %w", err)
	}
	return pub, string(commentBytes), nil
}
