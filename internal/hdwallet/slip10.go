package hdwallet

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

// SLIP-0010 ed25519 derivation. Only hardened children exist on this curve.

const slip10Curve = "ed25519 seed"

type edKey struct {
	key       []byte
	chainCode []byte
}

func edMaster(seed []byte) edKey {
	mac := hmac.New(sha512.New, []byte(slip10Curve))
	mac.Write(seed)
	sum := mac.Sum(nil)
	return edKey{key: sum[:32], chainCode: sum[32:]}
}

func (k edKey) child(index uint32) (edKey, error) {
	if index < hdkeychain.HardenedKeyStart {
		return edKey{}, fmt.Errorf("ed25519 supports hardened derivation only, got index %d", index)
	}
	data := make([]byte, 0, 37)
	data = append(data, 0x00)
	data = append(data, k.key...)
	data = binary.BigEndian.AppendUint32(data, index)

	mac := hmac.New(sha512.New, k.chainCode)
	mac.Write(data)
	sum := mac.Sum(nil)
	return edKey{key: sum[:32], chainCode: sum[32:]}, nil
}

func (k edKey) publicKey() ed25519.PublicKey {
	return ed25519.NewKeyFromSeed(k.key).Public().(ed25519.PublicKey)
}

func edDerive(seed []byte, path []uint32) (edKey, error) {
	k := edMaster(seed)
	for _, idx := range path {
		var err error
		if k, err = k.child(idx); err != nil {
			return edKey{}, err
		}
	}
	return k, nil
}
