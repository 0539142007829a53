package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/domain"
)

// maxParses bounds how many times one payload may be decoded from text.
const maxParses = 2

// payloadField holds the JSON document inside form-encoded deliveries.
const payloadField = "payload"

// adapter turns an event-specific object into a push-shaped object.
// ignored is set for well-formed events that must not deploy.
type adapter func(obj map[string]any) (push map[string]any, ignored string, err error)

// matcher tries one wire shape. matched=false passes v to the next matcher.
type matcher func(n *normalizer, v any) (event domain.WebhookEvent, matched bool, err error)

// shapes are tried in order for every value the normalizer sees.
var shapes = []matcher{
	matchCanonical,
	matchObject,
	matchFormValues,
	matchEncoded,
}

type normalizer struct {
	adapt     adapter
	parses    int
	unwrapped bool
}

// Normalize maps a push payload in any supported wire shape onto the
// canonical event. Accepted inputs are an already-canonical event, a decoded
// object with snake_case or PascalCase keys, raw JSON bytes or string, and a
// form envelope carrying the JSON under "payload". Normalize is idempotent.
func Normalize(raw any) (domain.WebhookEvent, error) {
	return NormalizeEvent(EventPush, raw)
}

// NormalizeEvent is Normalize for a specific event type. workflow_run and
// release deliveries are adapted into push form before field extraction.
func NormalizeEvent(eventType EventType, raw any) (domain.WebhookEvent, error) {
	adapt, ok := adapters[eventType]
	if !ok {
		return domain.WebhookEvent{}, &IgnoredError{Reason: fmt.Sprintf("unsupported event type %q", eventType)}
	}
	n := &normalizer{adapt: adapt}
	return n.run(raw)
}

func (n *normalizer) run(v any) (domain.WebhookEvent, error) {
	for _, shape := range shapes {
		event, matched, err := shape(n, v)
		if matched {
			return event, err
		}
	}
	return domain.WebhookEvent{}, &NormalizationError{Reason: fmt.Sprintf("unsupported payload type %T", v)}
}

func matchCanonical(_ *normalizer, v any) (domain.WebhookEvent, bool, error) {
	switch event := v.(type) {
	case domain.WebhookEvent:
		return event, true, nil
	case *domain.WebhookEvent:
		if event == nil {
			return domain.WebhookEvent{}, true, &NormalizationError{Reason: "nil event"}
		}
		return *event, true, nil
	}
	return domain.WebhookEvent{}, false, nil
}

func matchObject(n *normalizer, v any) (domain.WebhookEvent, bool, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return domain.WebhookEvent{}, false, nil
	}
	push, ignored, err := n.adapt(obj)
	if ignored != "" {
		return domain.WebhookEvent{}, true, &IgnoredError{Reason: ignored}
	}
	if err == nil {
		var event domain.WebhookEvent
		if event, err = fromObject(push); err == nil {
			return event, true, nil
		}
	}
	if inner, found := field(obj, payloadField); found && !n.unwrapped {
		n.unwrapped = true
		event, err := n.run(inner)
		return event, true, err
	}
	return domain.WebhookEvent{}, true, err
}

func matchFormValues(n *normalizer, v any) (domain.WebhookEvent, bool, error) {
	values, ok := v.(url.Values)
	if !ok {
		return domain.WebhookEvent{}, false, nil
	}
	obj := make(map[string]any, len(values))
	for key := range values {
		obj[key] = values.Get(key)
	}
	event, err := n.run(obj)
	return event, true, err
}

func matchEncoded(n *normalizer, v any) (domain.WebhookEvent, bool, error) {
	var text []byte
	switch raw := v.(type) {
	case []byte:
		text = raw
	case json.RawMessage:
		text = raw
	case string:
		text = []byte(raw)
	default:
		return domain.WebhookEvent{}, false, nil
	}
	text = bytes.TrimSpace(text)
	if len(text) == 0 {
		return domain.WebhookEvent{}, true, &NormalizationError{Reason: "empty payload"}
	}
	if n.parses >= maxParses {
		return domain.WebhookEvent{}, true, &NormalizationError{Reason: "payload still encoded after two parses"}
	}
	n.parses++

	var decoded any
	dec := json.NewDecoder(bytes.NewReader(text))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err == nil {
		event, err := n.run(decoded)
		return event, true, err
	}
	if !n.unwrapped {
		if values, err := url.ParseQuery(string(text)); err == nil && values.Has(payloadField) {
			event, err := n.run(values)
			return event, true, err
		}
	}
	return domain.WebhookEvent{}, true, &NormalizationError{Reason: "payload is neither JSON nor a form envelope"}
}

func fromObject(obj map[string]any) (domain.WebhookEvent, error) {
	event := domain.WebhookEvent{
		RefName:   firstString(obj, "ref", "ref_name"),
		BeforeSHA: firstString(obj, "before", "before_sha"),
		AfterSHA:  firstString(obj, "after", "after_sha"),
	}
	if head, ok := object(obj, "head_commit"); ok {
		commit := commitFrom(head)
		event.HeadCommit = &commit
	}
	if items, ok := field(obj, "commits"); ok {
		if list, ok := items.([]any); ok {
			for _, item := range list {
				if c, ok := item.(map[string]any); ok {
					event.Commits = append(event.Commits, commitFrom(c))
				}
			}
		}
	}
	if event.AfterSHA == "" && event.HeadCommit != nil {
		event.AfterSHA = event.HeadCommit.SHA
	}

	event.RepositoryURL = firstString(obj, "repository_url")
	event.RepositoryName = firstString(obj, "repository_name")
	if repo, ok := field(obj, "repository"); ok {
		switch r := repo.(type) {
		case map[string]any:
			if event.RepositoryURL == "" {
				event.RepositoryURL = firstString(r, "clone_url", "html_url", "url", "ssh_url", "git_url")
			}
			if event.RepositoryName == "" {
				event.RepositoryName = firstString(r, "name", "full_name")
			}
		case string:
			if event.RepositoryURL == "" {
				event.RepositoryURL = r
			}
		}
	}

	event.PusherName = firstString(obj, "pusher_name")
	if event.PusherName == "" {
		if pusher, ok := field(obj, "pusher"); ok {
			switch p := pusher.(type) {
			case map[string]any:
				event.PusherName = firstString(p, "name", "login", "username")
			case string:
				event.PusherName = p
			}
		}
	}
	if event.PusherName == "" {
		if sender, ok := object(obj, "sender"); ok {
			event.PusherName = firstString(sender, "login", "name")
		}
	}

	switch {
	case event.RefName == "":
		return domain.WebhookEvent{}, &NormalizationError{Reason: "missing ref"}
	case event.AfterSHA == "":
		return domain.WebhookEvent{}, &NormalizationError{Reason: "missing commit"}
	case event.RepositoryURL == "" && event.RepositoryName == "":
		return domain.WebhookEvent{}, &NormalizationError{Reason: "missing repository"}
	}
	return event, nil
}

func commitFrom(obj map[string]any) domain.Commit {
	c := domain.Commit{
		SHA:         firstString(obj, "id", "sha"),
		Message:     firstString(obj, "message"),
		AuthorEmail: firstString(obj, "author_email"),
		Added:       stringList(obj, "added"),
		Modified:    stringList(obj, "modified"),
		Removed:     stringList(obj, "removed"),
	}
	if author, ok := field(obj, "author"); ok {
		switch a := author.(type) {
		case map[string]any:
			c.Author = firstString(a, "name", "username", "login")
			if c.AuthorEmail == "" {
				c.AuthorEmail = firstString(a, "email")
			}
		case string:
			c.Author = a
		}
	}
	return c
}

// field looks a snake_case key up as written, then in PascalCase, then
// ignoring case and separators.
func field(obj map[string]any, snake string) (any, bool) {
	if v, ok := obj[snake]; ok && v != nil {
		return v, true
	}
	if v, ok := obj[pascal(snake)]; ok && v != nil {
		return v, true
	}
	want := squash(snake)
	for key, v := range obj {
		if v != nil && squash(key) == want {
			return v, true
		}
	}
	return nil, false
}

func object(obj map[string]any, snake string) (map[string]any, bool) {
	v, ok := field(obj, snake)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func firstString(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := field(obj, key)
		if !ok {
			continue
		}
		if s := scalar(v); s != "" {
			return s
		}
	}
	return ""
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

func stringList(obj map[string]any, snake string) []string {
	v, ok := field(obj, snake)
	if !ok {
		return nil
	}
	var out []string
	switch list := v.(type) {
	case []any:
		for _, item := range list {
			if s := scalar(item); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, s := range list {
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func pascal(snake string) string {
	parts := strings.Split(snake, "_")
	for i, part := range parts {
		if part != "" {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "")
}

func squash(key string) string {
	key = strings.ToLower(key)
	return strings.NewReplacer("_", "", "-", "").Replace(key)
}
