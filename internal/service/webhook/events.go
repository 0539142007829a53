package webhook

import (
	"errors"
	"net/http"
	"strings"
)

// EventType names the kind of source-control event a delivery carries.
type EventType string

// Processable event types.
const (
	EventPush        EventType = "push"
	EventWorkflowRun EventType = "workflow_run"
	EventRelease     EventType = "release"
)

// Event type headers, in lookup order.
const (
	EventTypeHeader       = "X-Event-Type"
	GitHubEventTypeHeader = "X-GitHub-Event"
)

var adapters = map[EventType]adapter{
	EventPush:        adaptPush,
	EventWorkflowRun: adaptWorkflowRun,
	EventRelease:     adaptRelease,
}

// EventTypeFromHeader reads the event type of a delivery. The second result
// is false for event types that are acknowledged but never processed.
func EventTypeFromHeader(h http.Header) (EventType, bool) {
	value := strings.TrimSpace(h.Get(EventTypeHeader))
	if value == "" {
		value = strings.TrimSpace(h.Get(GitHubEventTypeHeader))
	}
	if value == "" {
		return EventPush, true
	}
	t := EventType(strings.ToLower(value))
	_, ok := adapters[t]
	return t, ok
}

func adaptPush(obj map[string]any) (map[string]any, string, error) {
	return obj, "", nil
}

var errShape = errors.New("object does not have the expected shape")

func adaptWorkflowRun(obj map[string]any) (map[string]any, string, error) {
	run, ok := object(obj, "workflow_run")
	if !ok {
		return nil, "", errShape
	}
	if conclusion := firstString(run, "conclusion"); conclusion != "success" {
		if conclusion == "" {
			conclusion = "pending"
		}
		return nil, "workflow run conclusion is " + conclusion, nil
	}
	push := map[string]any{
		"ref":   "refs/heads/" + firstString(run, "head_branch"),
		"after": firstString(run, "head_sha"),
	}
	if repo, ok := field(obj, "repository"); ok {
		push["repository"] = repo
	} else if repo, ok := field(run, "repository"); ok {
		push["repository"] = repo
	}
	if head, ok := object(run, "head_commit"); ok {
		push["head_commit"] = head
	}
	if actor, ok := object(run, "actor"); ok {
		push["pusher_name"] = firstString(actor, "login", "name")
	}
	if sender, ok := field(obj, "sender"); ok {
		push["sender"] = sender
	}
	return push, "", nil
}

func adaptRelease(obj map[string]any) (map[string]any, string, error) {
	release, ok := object(obj, "release")
	if !ok {
		return nil, "", errShape
	}
	if action := firstString(obj, "action"); action != "published" {
		return nil, "release action is " + action, nil
	}
	push := map[string]any{
		"ref":   "refs/heads/" + firstString(release, "target_commitish"),
		"after": firstString(release, "tag_name"),
		"head_commit": map[string]any{
			"id":      firstString(release, "tag_name"),
			"message": firstString(release, "name", "body"),
		},
	}
	if repo, ok := field(obj, "repository"); ok {
		push["repository"] = repo
	}
	if author, ok := object(release, "author"); ok {
		push["pusher_name"] = firstString(author, "login", "name")
	}
	if sender, ok := field(obj, "sender"); ok {
		push["sender"] = sender
	}
	return push, "", nil
}
