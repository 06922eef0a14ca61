package validator

import "github.com/feelesschain/fullnode/internal/cryptoutil"

// cryptoVerify checks a non-reserved sender's signature: the sender
// string IS the hex public key (spec.md §3 "Transaction").
func cryptoVerify(pubkeyHex, sigHex string, digest [32]byte) bool {
	return cryptoutil.VerifyDER(pubkeyHex, sigHex, digest)
}
