package encounter

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func digestWriteVec(h hashWriter, tmp *[8]byte, v Vec3) {
	digestWriteF64(h, tmp, v.X)
	digestWriteF64(h, tmp, v.Y)
	digestWriteF64(h, tmp, v.Z)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// Digest hashes every field of the layout bit-exactly. Two layouts with
// equal digests are identical.
func (l *Layout) Digest() string {
	if l == nil {
		return ""
	}
	h := sha256.New()
	var tmp [8]byte
	l.writeDigest(h, &tmp)
	return hex.EncodeToString(h.Sum(nil))
}

func (l *Layout) writeDigest(h hashWriter, tmp *[8]byte) {
	digestWriteI64(h, tmp, l.Seed)
	h.Write([]byte(l.TemplateID))
	digestWriteF64(h, tmp, l.Width)
	digestWriteF64(h, tmp, l.Depth)

	digestWriteU64(h, tmp, uint64(len(l.Boundaries)))
	for _, b := range l.Boundaries {
		h.Write([]byte(b.Side))
		digestWriteVec(h, tmp, b.Pos)
		digestWriteVec(h, tmp, b.Size)
		digestWriteU64(h, tmp, uint64(b.Layer)<<32|uint64(b.Mask))
	}
	digestWriteU64(h, tmp, uint64(l.CoverTarget))
	digestWriteU64(h, tmp, uint64(len(l.Covers)))
	for _, c := range l.Covers {
		h.Write([]byte(c.ID))
		digestWriteVec(h, tmp, c.Pos)
		digestWriteVec(h, tmp, c.Size)
		digestWriteU64(h, tmp, uint64(c.Layer)<<32|uint64(c.Mask))
	}
	digestWriteU64(h, tmp, uint64(len(l.SpawnPoints)))
	for _, p := range l.SpawnPoints {
		digestWriteVec(h, tmp, p)
	}
}

// StateDigest hashes the deterministic part of the run. The run id is left
// out since it is random per generation.
func (e *Encounter) StateDigest() string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, e.tick)
	h.Write([]byte{byte(e.state)})
	digestWriteU64(h, &tmp, uint64(e.currentWave))
	digestWriteU64(h, &tmp, uint64(e.totalWaves))
	h.Write([]byte{
		boolByte(e.waveCompleteEmitted),
		boolByte(e.runCompleted),
		boolByte(e.arenaCompleteEmitted),
		boolByte(e.autoProgress),
		boolByte(e.transitionPending),
	})
	digestWriteI64(h, &tmp, int64(e.transitionDelay))
	digestWriteI64(h, &tmp, int64(e.transitionRemaining))
	digestWriteU64(h, &tmp, uint64(e.AliveEnemies()))

	if e.layout != nil {
		h.Write([]byte{1})
		e.layout.writeDigest(h, &tmp)
	} else {
		h.Write([]byte{0})
	}

	loot := e.loot.Total()
	keys := make([]string, 0, len(loot))
	for k := range loot {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		digestWriteI64(h, &tmp, int64(loot[k]))
	}

	return hex.EncodeToString(h.Sum(nil))
}
