package decrypt

import (
	"fmt"
	"strings"

	"topster/internal/errs"
)

// ExtractSecret walks pairs over src with a running cursor. For each pair the
// characters [offset+cursor, offset+cursor+length) are appended to the
// secret and marked consumed; cursor then advances by length. Positions are
// absolute in src, so consuming never shifts later indices. The remainder is
// src with every consumed position dropped.
func ExtractSecret(src string, pairs []IndexPair) (secret, remainder string, err error) {
	chars := []rune(src)
	consumed := make([]bool, len(chars))

	var sb strings.Builder
	cursor := 0
	for i, p := range pairs {
		start, end, ok := pairSpan(p, cursor, len(chars))
		if !ok {
			return "", "", errs.Decryption(
				fmt.Sprintf("index pair %d [%d,%d] out of range for %d characters", i, p.Offset, p.Length, len(chars)), nil)
		}
		for j := start; j < end; j++ {
			if consumed[j] {
				continue
			}
			sb.WriteRune(chars[j])
			consumed[j] = true
		}
		cursor += p.Length
	}

	var rest strings.Builder
	for i, c := range chars {
		if !consumed[i] {
			rest.WriteRune(c)
		}
	}
	return sb.String(), rest.String(), nil
}

// pairSpan returns the span p covers at cursor within n characters. The
// checks run before any addition so hostile values cannot overflow.
func pairSpan(p IndexPair, cursor, n int) (start, end int, ok bool) {
	if p.Offset < 0 || p.Length < 0 || p.Offset > n || p.Length > n || cursor > n-p.Offset-p.Length {
		return 0, 0, false
	}
	start = p.Offset + cursor
	return start, start + p.Length, true
}

// InsertSecret is the inverse of ExtractSecret for non-overlapping pairs:
// it weaves secret back into remainder at the positions the pairs describe.
func InsertSecret(secret, remainder string, pairs []IndexPair) (string, error) {
	sec := []rune(secret)
	rem := []rune(remainder)
	total := len(sec) + len(rem)

	out := make([]rune, total)
	taken := make([]bool, total)

	cursor, k := 0, 0
	for i, p := range pairs {
		start, end, ok := pairSpan(p, cursor, total)
		if !ok {
			return "", errs.Decryption(fmt.Sprintf("index pair %d out of range", i), nil)
		}
		for j := start; j < end; j++ {
			if taken[j] {
				continue
			}
			if k >= len(sec) {
				return "", errs.Decryption("secret shorter than index pairs describe", nil)
			}
			out[j] = sec[k]
			taken[j] = true
			k++
		}
		cursor += p.Length
	}
	if k != len(sec) {
		return "", errs.Decryption("secret longer than index pairs describe", nil)
	}

	r := 0
	for i := range out {
		if !taken[i] {
			out[i] = rem[r]
			r++
		}
	}
	return string(out), nil
}
