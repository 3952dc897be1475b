package worktree

import "hash/fnv"

// Identifiers for branch-only environments are drawn from this range, which
// sits above realistic pull request numbers.
const (
	BranchIDStart = 90000
	BranchIDSize  = 10000
)

// HashBranch maps a branch name to a stable identifier in
// [BranchIDStart, BranchIDStart+BranchIDSize).
func HashBranch(name string) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int(h.Sum64()%BranchIDSize) + BranchIDStart
}

// IsBranchID reports whether id lies in the branch identifier range.
func IsBranchID(id int) bool {
	return id >= BranchIDStart && id < BranchIDStart+BranchIDSize
}
