package retrieval

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// encodeVector packs v as little-endian float32s for a BLOB column.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob has %d bytes", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}

// cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector is zero.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// rankByCosine returns the topK texts most similar to query, best first.
// Ties keep corpus order.
func rankByCosine(query []float32, vectors [][]float32, texts []string, topK int) []string {
	if topK <= 0 || len(vectors) == 0 {
		return nil
	}
	idx := make([]int, len(vectors))
	scores := make([]float64, len(vectors))
	for i, v := range vectors {
		idx[i] = i
		scores[i] = cosine(query, v)
	}
	sort.SliceStable(idx, func(i, j int) bool { return scores[idx[i]] > scores[idx[j]] })

	if len(idx) > topK {
		idx = idx[:topK]
	}
	out := make([]string, 0, len(idx))
	for _, i := range idx {
		out = append(out, texts[i])
	}
	return out
}
