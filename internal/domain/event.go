package domain

import "strings"

// UnknownBranch is reported when a ref does not name a branch.
const UnknownBranch = "unknown"

const branchRefPrefix = "refs/heads/"

// Commit is a single commit carried by a push event.
type Commit struct {
	SHA         string
	Message     string
	Author      string
	AuthorEmail string
	Added       []string
	Modified    []string
	Removed     []string
}

// WebhookEvent is the canonical, shape-independent push notification. It is
// built once per request and never mutated.
type WebhookEvent struct {
	RefName        string
	BeforeSHA      string
	AfterSHA       string
	RepositoryURL  string
	RepositoryName string
	PusherName     string
	Commits        []Commit
	HeadCommit     *Commit
}

// Branch strips the refs/heads/ prefix, or returns UnknownBranch for tags and
// other refs.
func (e WebhookEvent) Branch() string {
	if !strings.HasPrefix(e.RefName, branchRefPrefix) {
		return UnknownBranch
	}
	branch := strings.TrimPrefix(e.RefName, branchRefPrefix)
	if branch == "" {
		return UnknownBranch
	}
	return branch
}

// ChangedFiles returns the union of added and modified paths across all
// commits, first occurrence order.
func (e WebhookEvent) ChangedFiles() []string {
	seen := make(map[string]struct{})
	var files []string
	add := func(paths []string) {
		for _, p := range paths {
			if p == "" {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			files = append(files, p)
		}
	}
	for _, c := range e.Commits {
		add(c.Added)
		add(c.Modified)
	}
	return files
}

// CommitMessage returns the head commit message, falling back to the last commit.
func (e WebhookEvent) CommitMessage() string {
	if e.HeadCommit != nil {
		return e.HeadCommit.Message
	}
	if n := len(e.Commits); n > 0 {
		return e.Commits[n-1].Message
	}
	return ""
}

// Pusher names who produced the event, falling back to the head commit author.
func (e WebhookEvent) Pusher() string {
	if e.PusherName != "" {
		return e.PusherName
	}
	if e.HeadCommit != nil {
		return e.HeadCommit.Author
	}
	return ""
}
