// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
)

// ErrAuthRejected is the single error surfaced for any SRP failure,
// deliberately not distinguishing unknown identity from wrong password
// (spec.md §7, §4.10: "no distinction between unknown identity and wrong
// password").
var ErrAuthRejected = errors.New("auth: rejected")

// Verifier is what the host's identity store persists for a registered
// user: the password salt and the verifier v = g^x mod N.
type Verifier struct {
	Salt []byte
	V    *big.Int
}

// DerivePrivateKey computes x = H(salt || H(identity ":" password)),
// applying the hash rounds-1 additional times to the outer digest (the
// "configurable iteration count" of spec.md §4.10). rounds < 1 is treated
// as 1.
func DerivePrivateKey(group Group, hashName, identity, password string, salt []byte, rounds int) *big.Int {
	h := NewHash(hashName)
	h.Write([]byte(identity))
	h.Write([]byte(":"))
	h.Write([]byte(password))
	inner := h.Sum(nil)

	h.Reset()
	h.Write(salt)
	h.Write(inner)
	x := h.Sum(nil)

	for i := 1; i < rounds; i++ {
		h.Reset()
		h.Write(x)
		x = h.Sum(nil)
	}
	return new(big.Int).SetBytes(x)
}

// GenerateVerifier computes v = g^x mod N for registration.
func GenerateVerifier(group Group, x *big.Int) *big.Int {
	return new(big.Int).Exp(group.G, x, group.N)
}

func randomBigInt(bits int) (*big.Int, error) {
	buf := make([]byte, (bits+7)/8)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(buf), nil
}

// HostSession runs the host side of one SRP-6a exchange: Begin computes
// the public ephemeral value and session key (real or, for an unknown
// identity, a plausible fake), VerifyClientProof checks the client's
// evidence and yields the host's own.
type HostSession struct {
	group    Group
	hashName string

	a *big.Int // client's public ephemeral value A
	b *big.Int // host's secret ephemeral value
	B *big.Int // host's public ephemeral value
	k *big.Int

	sessionKey []byte
	fake       bool
}

// NewHostSession constructs a host-role session for the given group and
// hash algorithm.
func NewHostSession(group Group, hashName string) *HostSession {
	return &HostSession{group: group, hashName: hashName, k: group.multiplier(NewHash(hashName))}
}

// Begin processes the client's (identity, A) against a looked-up
// verifier. When found is false, it synthesizes a fake salt and nonce
// from identitySeed so that unknown identities and wrong passwords are
// wire-indistinguishable to the client (spec.md §4.10, §8 scenario 6).
// It returns the salt and B to send back to the client.
func (s *HostSession) Begin(identity string, clientA *big.Int, v Verifier, found bool, identitySeed []byte) (salt []byte, B *big.Int, err error) {
	s.a = clientA
	if clientA.Sign() <= 0 || new(big.Int).Mod(clientA, s.group.N).Sign() == 0 {
		return nil, nil, fmt.Errorf("auth: invalid client ephemeral value")
	}

	if !found {
		s.fake = true
		h := NewHash(s.hashName)
		h.Write([]byte(identity))
		h.Write(identitySeed)
		salt = h.Sum(nil)
		nonce, rerr := randomBigInt(s.group.Bits)
		if rerr != nil {
			return nil, nil, rerr
		}
		s.B = new(big.Int).Mod(nonce, s.group.N)
		s.sessionKey = s.deriveFakeKey(identity)
		return salt, s.B, nil
	}

	b, err := randomBigInt(s.group.Bits)
	if err != nil {
		return nil, nil, err
	}
	s.b = b

	// B = k*v + g^b mod N
	gb := new(big.Int).Exp(s.group.G, b, s.group.N)
	kv := new(big.Int).Mul(s.k, v.V)
	kv.Mod(kv, s.group.N)
	B = new(big.Int).Add(kv, gb)
	B.Mod(B, s.group.N)
	s.B = B

	u := computeU(s.group, s.hashName, clientA, B)
	if u.Sign() == 0 {
		return nil, nil, fmt.Errorf("auth: degenerate scrambling parameter")
	}

	// S = (A * v^u)^b mod N
	vu := new(big.Int).Exp(v.V, u, s.group.N)
	base := new(big.Int).Mul(clientA, vu)
	base.Mod(base, s.group.N)
	S := new(big.Int).Exp(base, b, s.group.N)

	h := NewHash(s.hashName)
	h.Write(pad(S.Bytes(), s.group.N))
	premaster := h.Sum(nil)
	s.sessionKey = deriveSessionKey(s.hashName, premaster, v.Salt, len(premaster))

	return v.Salt, B, nil
}

// deriveFakeKey produces a session key for the fake-identity path that is
// the same length and shape as a real one but can never match any real
// client's computation.
func (s *HostSession) deriveFakeKey(identity string) []byte {
	h := NewHash(s.hashName)
	h.Write([]byte("fake-key"))
	h.Write([]byte(identity))
	h.Write(s.B.Bytes())
	premaster := h.Sum(nil)
	return deriveSessionKey(s.hashName, premaster, s.B.Bytes(), len(premaster))
}

// computeU implements u = H(PAD(A), PAD(B)).
func computeU(group Group, hashName string, A, B *big.Int) *big.Int {
	h := NewHash(hashName)
	h.Write(pad(A.Bytes(), group.N))
	h.Write(pad(B.Bytes(), group.N))
	return new(big.Int).SetBytes(h.Sum(nil))
}

// clientProof computes M = H(A, B, K), the alternate evidence formula
// noted in the group's own design reference.
func clientProof(hashName string, A, B *big.Int, K []byte) []byte {
	h := NewHash(hashName)
	h.Write(A.Bytes())
	h.Write(B.Bytes())
	h.Write(K)
	return h.Sum(nil)
}

// hostProof computes H(A, M, K).
func hostProof(hashName string, A *big.Int, M, K []byte) []byte {
	h := NewHash(hashName)
	h.Write(A.Bytes())
	h.Write(M)
	h.Write(K)
	return h.Sum(nil)
}

// VerifyClientProof checks the client's evidence M_c and, on success,
// returns the host's own evidence M_s to send back. A fake-path session
// always rejects (ErrAuthRejected) since it was never given a real
// verifier to derive a matching session key from.
func (s *HostSession) VerifyClientProof(clientProofBytes []byte) ([]byte, error) {
	expected := clientProof(s.hashName, s.a, s.B, s.sessionKey)
	if s.fake || subtle.ConstantTimeCompare(expected, clientProofBytes) != 1 {
		return nil, ErrAuthRejected
	}
	return hostProof(s.hashName, s.a, clientProofBytes, s.sessionKey), nil
}

// SessionKey returns the derived key K (meaningful only after a
// successful VerifyClientProof on the real path).
func (s *HostSession) SessionKey() []byte { return s.sessionKey }

// UserSession runs the client side of one SRP-6a exchange.
type UserSession struct {
	group    Group
	hashName string

	a *big.Int
	A *big.Int

	sessionKey []byte
	proof      []byte
}

// NewUserSession constructs a user-role session.
func NewUserSession(group Group, hashName string) *UserSession {
	return &UserSession{group: group, hashName: hashName}
}

// Begin generates the client's secret/public ephemeral pair (a, A).
func (s *UserSession) Begin() (*big.Int, error) {
	a, err := randomBigInt(s.group.Bits)
	if err != nil {
		return nil, err
	}
	s.a = a
	s.A = new(big.Int).Exp(s.group.G, a, s.group.N)
	return s.A, nil
}

// ComputeProof derives the session key from the host's (salt, B) and the
// user's password, returning the client evidence M to send to the host.
func (s *UserSession) ComputeProof(identity, password string, salt []byte, B *big.Int, rounds int) ([]byte, error) {
	if new(big.Int).Mod(B, s.group.N).Sign() == 0 {
		return nil, fmt.Errorf("auth: invalid host ephemeral value")
	}
	x := DerivePrivateKey(s.group, s.hashName, identity, password, salt, rounds)
	u := computeU(s.group, s.hashName, s.A, B)
	if u.Sign() == 0 {
		return nil, fmt.Errorf("auth: degenerate scrambling parameter")
	}

	k := s.group.multiplier(NewHash(s.hashName))
	gx := new(big.Int).Exp(s.group.G, x, s.group.N)
	kgx := new(big.Int).Mul(k, gx)
	kgx.Mod(kgx, s.group.N)

	base := new(big.Int).Sub(B, kgx)
	base.Mod(base, s.group.N)

	exp := new(big.Int).Mul(u, x)
	exp.Add(exp, s.a)

	S := new(big.Int).Exp(base, exp, s.group.N)

	h := NewHash(s.hashName)
	h.Write(pad(S.Bytes(), s.group.N))
	premaster := h.Sum(nil)
	s.sessionKey = deriveSessionKey(s.hashName, premaster, salt, len(premaster))

	s.proof = clientProof(s.hashName, s.A, B, s.sessionKey)
	return s.proof, nil
}

// VerifyServerProof checks the host's evidence against the locally
// derived session key.
func (s *UserSession) VerifyServerProof(serverProof []byte) bool {
	expected := hostProof(s.hashName, s.A, s.proof, s.sessionKey)
	return subtle.ConstantTimeCompare(expected, serverProof) == 1
}

// SessionKey returns the derived key K.
func (s *UserSession) SessionKey() []byte { return s.sessionKey }
