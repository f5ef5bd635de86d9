package keygen

import (
	"encoding/binary"

	"github.com/tos-network/custody/crypto/evrf"
	"github.com/tos-network/custody/internal/database"
)

const component = "keygen"

func paramsKey(network []byte, session [32]byte) []byte {
	return database.Key(component, []byte("params"), network, session[:])
}

func keyPairKey(network []byte, session [32]byte) []byte {
	return database.Key(component, []byte("keypair"), network, session[:])
}

// PersistParams durably records (threshold, substrate_keys, network_keys)
// for a session as soon as GenerateKey is handled (spec.md §4.D step 1),
// before this participant's own Participation is even produced, so a
// crash mid-DKG resumes from the same public-key list instead of
// re-deriving it from a replayed coordinator command.
func PersistParams(db database.KeyValueStore, network []byte, session [32]byte, threshold int, substrateKeys, networkKeys []evrf.PublicKey) error {
	var thresholdBytes [4]byte
	binary.BigEndian.PutUint32(thresholdBytes[:], uint32(threshold))
	buf := append([]byte(nil), thresholdBytes[:]...)
	buf = appendKeyList(buf, substrateKeys)
	buf = appendKeyList(buf, networkKeys)
	return db.Put(paramsKey(network, session), buf)
}

func appendKeyList(buf []byte, keys []evrf.PublicKey) []byte {
	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(keys)))
	buf = append(buf, count[:]...)
	for _, k := range keys {
		var l [4]byte
		binary.BigEndian.PutUint32(l[:], uint32(len(k)))
		buf = append(buf, l[:]...)
		buf = append(buf, k...)
	}
	return buf
}

// PersistKeyPair durably records this participant's derived
// (substrate_key, network_key) group keys and final shares once Verify
// succeeds (spec.md §4.D: "derive our key shares on each curve... persist
// them").
func PersistKeyPair(db database.KeyValueStore, network []byte, session [32]byte, coordKey, netKey evrf.PublicKey, coordShare, netShare []byte) error {
	buf := make([]byte, 0, len(coordKey)+len(netKey)+len(coordShare)+len(netShare)+16)
	for _, part := range [][]byte{coordKey, netKey, coordShare, netShare} {
		var l [4]byte
		binary.BigEndian.PutUint32(l[:], uint32(len(part)))
		buf = append(buf, l[:]...)
		buf = append(buf, part...)
	}
	return db.Put(keyPairKey(network, session), buf)
}

// LoadKeyPair reverses PersistKeyPair, used on restart to check whether a
// session's derivation already completed before the crash.
func LoadKeyPair(db database.KeyValueStore, network []byte, session [32]byte) (coordKey, netKey evrf.PublicKey, coordShare, netShare []byte, err error) {
	buf, err := db.Get(keyPairKey(network, session))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	parts := make([][]byte, 4)
	off := 0
	for i := range parts {
		l := binary.BigEndian.Uint32(buf[off : off+4])
		off += 4
		parts[i] = buf[off : off+int(l)]
		off += int(l)
	}
	return evrf.PublicKey(parts[0]), evrf.PublicKey(parts[1]), parts[2], parts[3], nil
}
