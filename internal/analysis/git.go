package analysis

import (
	git "github.com/go-git/go-git/v5"
)

// gitInfo returns the HEAD commit hash and branch name when root is a git
// repository, empty strings otherwise. Analysis never fails on git errors;
// snapshots of exported trees are equally valid.
func gitInfo(root string) (commit, branch string) {
	repo, err := git.PlainOpen(root)
	if err != nil {
		return "", ""
	}
	head, err := repo.Head()
	if err != nil {
		return "", ""
	}
	commit = head.Hash().String()
	if head.Name().IsBranch() {
		branch = head.Name().Short()
	}
	return commit, branch
}
