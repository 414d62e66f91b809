// Package decrypt implements the backend-agnostic primitives used to undo
// hosting-backend obfuscation: player-script variable mining, index-pair
// secret extraction, OpenSSL-salted AES-CBC and raw-key AES.
package decrypt

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/robertkrimen/otto"
)

// IndexPair is an (offset, length) instruction locating one fragment of a
// secret inside an obfuscated string.
type IndexPair struct {
	Offset int
	Length int
}

// caseAssignPattern matches `case 0x1f: a=tok1, b=tok2;` unless the
// statement also assigns partKey. RE2 has no lookahead, hence regexp2.
var caseAssignPattern = regexp2.MustCompile(
	`case\s*0x[0-9a-fA-F]+:(?![^;]*=partKey)\s*\w+\s*=\s*(\w+)\s*,\s*\w+\s*=\s*(\w+);`,
	regexp2.None,
)

// MineIndexPairs scans an obfuscated player script for the case-statement
// pairs that encode the secret layout. Each token is resolved to its hex
// literal elsewhere in the script. Pairs whose tokens cannot be resolved are
// skipped. A script without matching statements yields an empty slice.
func MineIndexPairs(script string) []IndexPair {
	var pairs []IndexPair

	m, err := caseAssignPattern.FindStringMatch(script)
	for err == nil && m != nil {
		groups := m.Groups()
		first, ok1 := resolveToken(script, groups[1].String())
		second, ok2 := resolveToken(script, groups[2].String())
		if ok1 && ok2 {
			pairs = append(pairs, IndexPair{Offset: first, Length: second})
		}
		m, err = caseAssignPattern.FindNextMatch(m)
	}

	return pairs
}

// resolveToken finds a literal `,tok=0x1a` (or `,tok=1a`) and parses it as hex.
// When the assignment is an expression instead of a literal it is
// evaluated with otto.
func resolveToken(script, tok string) (int, bool) {
	if tok == "" {
		return 0, false
	}
	re := regexp.MustCompile(`,` + regexp.QuoteMeta(tok) + `=((?:0[xX])?[0-9a-fA-F]+)(?:[,;\s)}]|$)`)
	if m := re.FindStringSubmatch(script); m != nil {
		hex := strings.TrimPrefix(strings.ToLower(m[1]), "0x")
		v, err := strconv.ParseInt(hex, 16, 64)
		if err == nil {
			return int(v), true
		}
	}
	return evalToken(script, tok)
}

// evalToken evaluates `tok=<expr>` where expr is built from numeric
// literals and arithmetic, e.g. `,k=0x3+0x2`.
func evalToken(script, tok string) (int, bool) {
	re := regexp.MustCompile(`[,;\s]` + regexp.QuoteMeta(tok) + `\s*=\s*([0-9a-fA-FxX+\-*/()\s]+)[,;]`)
	m := re.FindStringSubmatch(script)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return 0, false
	}

	vm := otto.New()
	value, err := vm.Run("(" + m[1] + ")")
	if err != nil {
		return 0, false
	}
	n, err := value.ToInteger()
	if err != nil || n < 0 {
		return 0, false
	}
	return int(n), true
}
