package tcp

// Value is a 32-bit TCP sequence number. Comparisons must account for
// wraparound, per RFC 793 §3.3: arithmetic is always done modulo 2**32.
type Value uint32

// Add returns v+delta, wrapping as uint32 arithmetic does.
func (v Value) Add(delta int) Value { return Value(int64(v) + int64(delta)) }

// LessThan reports whether v precedes other in sequence-space order,
// treating the space as a window centered so wraparound behaves.
func (v Value) LessThan(other Value) bool {
	return int32(v-other) < 0
}

// LessThanEq reports v == other || v.LessThan(other).
func (v Value) LessThanEq(other Value) bool { return v == other || v.LessThan(other) }

// InWindow reports whether v falls in [start, start+size).
func (v Value) InWindow(start Value, size int) bool {
	return start.LessThanEq(v) && v.LessThan(start.Add(size))
}
