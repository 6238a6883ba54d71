package artifact

import "strings"

// DiffOpKind classifies one line of a structural diff.
type DiffOpKind string

const (
	DiffEqual  DiffOpKind = "equal"
	DiffInsert DiffOpKind = "insert"
	DiffDelete DiffOpKind = "delete"
)

// DiffOp is one line-level operation transforming the older version
// into the newer one.
type DiffOp struct {
	Kind DiffOpKind `json:"kind"`
	Line string     `json:"line"`
}

// Diff computes a line-based diff between two contents using the
// longest common subsequence. It is a pure function of its inputs;
// callers compute it on demand rather than caching it.
func Diff(from, to string) []DiffOp {
	a := splitLines(from)
	b := splitLines(to)

	// lcs[i][j] = length of the LCS of a[i:] and b[j:].
	lcs := make([][]int, len(a)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	ops := make([]DiffOp, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			ops = append(ops, DiffOp{Kind: DiffEqual, Line: a[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			ops = append(ops, DiffOp{Kind: DiffDelete, Line: a[i]})
			i++
		default:
			ops = append(ops, DiffOp{Kind: DiffInsert, Line: b[j]})
			j++
		}
	}
	for ; i < len(a); i++ {
		ops = append(ops, DiffOp{Kind: DiffDelete, Line: a[i]})
	}
	for ; j < len(b); j++ {
		ops = append(ops, DiffOp{Kind: DiffInsert, Line: b[j]})
	}
	return ops
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
