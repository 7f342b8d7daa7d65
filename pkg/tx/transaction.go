// Package tx defines the ledger's tagged transaction model: canonical
// digesting, signing/verification, and the per-kind constructors.
package tx

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/certen/ledger-core/pkg/crypto"
)

// Type tags the semantic kind of a transaction.
type Type string

const (
	Transfer         Type = "transfer"
	ValidatorUpdate  Type = "validator_update"
	PermissionGrant  Type = "permission_grant"
	PermissionRevoke Type = "permission_revoke"
	Genesis          Type = "genesis"
	DeployContract   Type = "deploy_contract"
	CallContract     Type = "call_contract"
	Custom           Type = "custom"
)

// GenesisSender is the literal sender address of the genesis transaction.
const GenesisSender = "genesis"

// GenesisSignature is the sentinel signature attached to the genesis transaction.
const GenesisSignature = "genesis_signature"

// Errors returned by signing and verification.
var (
	ErrMissingSignature = errors.New("tx: signature missing")
	ErrMissingPublicKey = errors.New("tx: public key missing")
	ErrSenderMismatch   = errors.New("tx: public key does not derive to sender")
	ErrInvalidSignature = errors.New("tx: signature invalid")
)

// Input is a single transaction input.
type Input struct {
	FromAddress string         `json:"from_address"`
	Amount      *float64       `json:"amount,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// Output is a single transaction output.
type Output struct {
	ToAddress string         `json:"to_address"`
	Amount    *float64       `json:"amount,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Transaction is the common envelope for every transaction kind. Signature
// and PublicKey are excluded from the canonical digest.
type Transaction struct {
	Type      Type           `json:"type"`
	Sender    string         `json:"sender"`
	Inputs    []Input        `json:"inputs"`
	Outputs   []Output       `json:"outputs"`
	Data      map[string]any `json:"data"`
	Nonce     uint64         `json:"nonce"`
	Timestamp float64        `json:"timestamp"`
	Signature string         `json:"signature"`
	PublicKey string         `json:"public_key"`
}

// digestView is the canonical, sorted-key JSON projection that is hashed.
// Signature and public key are intentionally absent. Fields are declared in
// alphabetical key order — encoding/json emits struct fields in declaration
// order, so this ordering is what makes the projection canonical.
type digestView struct {
	Data      map[string]any `json:"data"`
	Inputs    []Input        `json:"inputs"`
	Nonce     uint64         `json:"nonce"`
	Outputs   []Output       `json:"outputs"`
	Sender    string         `json:"sender"`
	Timestamp float64        `json:"timestamp"`
	Type      Type           `json:"type"`
}

// New builds a transaction with the given fields, defaulting Data to an
// empty (non-nil) map so the digest is stable across construction paths.
func New(typ Type, sender string, inputs []Input, outputs []Output, data map[string]any, nonce uint64, timestamp float64) *Transaction {
	if data == nil {
		data = map[string]any{}
	}
	if inputs == nil {
		inputs = []Input{}
	}
	if outputs == nil {
		outputs = []Output{}
	}
	return &Transaction{
		Type:      typ,
		Sender:    sender,
		Inputs:    inputs,
		Outputs:   outputs,
		Data:      data,
		Nonce:     nonce,
		Timestamp: timestamp,
	}
}

// Hash computes the canonical SHA-256 digest of the transaction, excluding
// signature and public key. Map keys are marshaled in sorted order by
// encoding/json and digestView's fields are declared alphabetically, so the
// projection is fully sorted-key canonical JSON.
func (t *Transaction) Hash() (string, error) {
	view := digestView{
		Data:      t.Data,
		Inputs:    t.Inputs,
		Nonce:     t.Nonce,
		Outputs:   t.Outputs,
		Sender:    t.Sender,
		Timestamp: t.Timestamp,
		Type:      t.Type,
	}
	raw, err := json.Marshal(view)
	if err != nil {
		return "", fmt.Errorf("tx: marshal digest view: %w", err)
	}
	digest := sha256.Sum256(raw)
	return hex.EncodeToString(digest[:]), nil
}

// MustHash is Hash but panics on marshal failure, which cannot occur for the
// types this package constructs.
func (t *Transaction) MustHash() string {
	h, err := t.Hash()
	if err != nil {
		panic(err)
	}
	return h
}

// Sign computes the digest, signs it, and attaches the signature and the
// derived public key.
func (t *Transaction) Sign(kp *crypto.KeyPair) error {
	h, err := t.Hash()
	if err != nil {
		return err
	}
	sig, err := kp.Sign([]byte(h))
	if err != nil {
		return fmt.Errorf("tx: sign: %w", err)
	}
	t.Signature = sig
	t.PublicKey = kp.PublicKeyHex()
	return nil
}

// VerifySignature checks the transaction's signature against its own
// attached public key (or an override). It does not check that the public
// key derives to the sender address; Validate does. Genesis transactions
// use a sentinel signature and bypass cryptographic verification entirely —
// callers must special-case GenesisSender before calling this.
func (t *Transaction) VerifySignature(publicKeyOverride ...string) bool {
	pub := t.PublicKey
	if len(publicKeyOverride) > 0 && publicKeyOverride[0] != "" {
		pub = publicKeyOverride[0]
	}
	if pub == "" || t.Signature == "" {
		return false
	}
	h, err := t.Hash()
	if err != nil {
		return false
	}
	return crypto.VerifySignature([]byte(h), t.Signature, pub)
}

// Validate runs the admission-time signature checks — signature present,
// public key present, public key derives to sender, signature verifies —
// returning the first violated invariant. Genesis transactions are exempt.
func (t *Transaction) Validate() error {
	if t.Sender == GenesisSender {
		return nil
	}
	if t.Signature == "" {
		return ErrMissingSignature
	}
	if t.PublicKey == "" {
		return ErrMissingPublicKey
	}
	if crypto.AddressFromPublicKeyHex(t.PublicKey) != t.Sender {
		return ErrSenderMismatch
	}
	if !t.VerifySignature() {
		return ErrInvalidSignature
	}
	return nil
}

// wireForm is the transaction's JSON exchange shape, with Hash included
// for informational purposes (receivers must recompute, never trust it).
type wireForm struct {
	Hash      string         `json:"hash"`
	Type      Type           `json:"type"`
	Sender    string         `json:"sender"`
	Inputs    []Input        `json:"inputs"`
	Outputs   []Output       `json:"outputs"`
	Data      map[string]any `json:"data"`
	Nonce     uint64         `json:"nonce"`
	Timestamp float64        `json:"timestamp"`
	Signature string         `json:"signature"`
	PublicKey string         `json:"public_key"`
}

// ToJSON serializes the transaction to its canonical wire form.
func (t *Transaction) ToJSON() ([]byte, error) {
	h, err := t.Hash()
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireForm{
		Hash:      h,
		Type:      t.Type,
		Sender:    t.Sender,
		Inputs:    t.Inputs,
		Outputs:   t.Outputs,
		Data:      t.Data,
		Nonce:     t.Nonce,
		Timestamp: t.Timestamp,
		Signature: t.Signature,
		PublicKey: t.PublicKey,
	})
}

// FromJSON reconstructs a transaction from its wire form. The embedded hash
// is discarded; callers recompute it via Hash().
func FromJSON(data []byte) (*Transaction, error) {
	var w wireForm
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("tx: unmarshal: %w", err)
	}
	return &Transaction{
		Type:      w.Type,
		Sender:    w.Sender,
		Inputs:    w.Inputs,
		Outputs:   w.Outputs,
		Data:      w.Data,
		Nonce:     w.Nonce,
		Timestamp: w.Timestamp,
		Signature: w.Signature,
		PublicKey: w.PublicKey,
	}, nil
}
