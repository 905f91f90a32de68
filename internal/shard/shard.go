// Package shard splits work across a fixed number of segments or lanes.
package shard

import (
	"fmt"
	"hash/fnv"
)

// MaxSegments is the largest TotalSegments DynamoDB accepts for a parallel scan.
const MaxSegments = 1000000

// Segments returns the segment numbers of a parallel scan split n ways.
// n is clamped to [1, MaxSegments].
func Segments(n int) []int32 {
	n = Clamp(n)
	segs := make([]int32, n)
	for i := range segs {
		segs[i] = int32(i)
	}
	return segs
}

// Clamp bounds n to [1, MaxSegments].
func Clamp(n int) int {
	switch {
	case n < 1:
		return 1
	case n > MaxSegments:
		return MaxSegments
	}
	return n
}

// Of returns the lane of key among n lanes.
// With n<=1, every key goes to lane 0.
// With n>1, keys are distributed by FNV-1a hash, so equal keys always share a lane.
func Of(key string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

// Label formats a lane or segment number for logs.
func Label(lane int) string {
	return fmt.Sprintf("%02x", lane)
}
