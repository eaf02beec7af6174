// Package crypto provides the node's record signer: key management and
// detached secp256k1 signatures over canonical custody-record bytes.
package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/kitchain/kitchain/internal/domain"
)

// Signer produces and verifies detached signatures over a record's canonical
// signing string using a secp256k1 key pair. The node's address doubles as
// its identity in gossip and audit logs.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}

	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the node identity derived from the signing key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignRecord signs the record's canonical signing string and returns the
// hex-encoded 65-byte signature (r || s || v).
func (s *Signer) SignRecord(r domain.CustodyRecord) (string, error) {
	digest := ethcrypto.Keccak256([]byte(r.SigningString()))

	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto: %w: %v", domain.ErrSigningFailed, err)
	}

	return "0x" + hex.EncodeToString(sig), nil
}

// VerifyRecordBy checks the record's detached signature against its canonical
// signing string and the expected signer. Recovery alone is not proof, since
// any well-formed signature recovers to some key; the recovered address must
// match the identity that claims authorship.
func VerifyRecordBy(r domain.CustodyRecord, expected common.Address) error {
	addr, err := RecoverSigner(r)
	if err != nil {
		return err
	}
	if addr != expected {
		return fmt.Errorf("%w: record signed by %s, expected %s", domain.ErrValidation, addr, expected)
	}
	return nil
}

// RecoverSigner returns the address that produced the record's signature.
// Useful for attributing records in audit output.
func RecoverSigner(r domain.CustodyRecord) (common.Address, error) {
	sigHex := strings.TrimPrefix(r.Signature, "0x")
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != 65 {
		return common.Address{}, fmt.Errorf("%w: malformed signature", domain.ErrValidation)
	}

	digest := ethcrypto.Keccak256([]byte(r.SigningString()))
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: signature does not recover: %v", domain.ErrValidation, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// GenerateKey creates a fresh secp256k1 private key, hex encoded. Intended
// for first-run provisioning of a node identity.
func GenerateKey() (string, error) {
	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("crypto: generate key: %w", err)
	}
	return hex.EncodeToString(ethcrypto.FromECDSA(pk)), nil
}
