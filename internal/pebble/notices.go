// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package pebble

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/canonical/pebble/client"
	"github.com/juju/errors"

	coreerrors "github.com/canonical/operator-sub000/core/errors"
	"github.com/canonical/operator-sub000/state"
)

// customKeyRegexp matches keys such as "example.com/path/to/thing".
var customKeyRegexp = regexp.MustCompile(
	`^[a-z0-9]+(-[a-z0-9]+)*(\.[a-z0-9]+(-[a-z0-9]+)*)+(/[a-z0-9]+(-[a-z0-9]+)*)+$`)

// ValidCustomKey reports whether key is a valid custom notice key.
func ValidCustomKey(key string) bool {
	return len(key) <= 256 && customKeyRegexp.MatchString(key)
}

// NoticesOptions filters the result of Notices.
type NoticesOptions struct {
	Types []client.NoticeType
	Keys  []string
}

func toClientNotice(n state.Notice) *client.Notice {
	noticeType := client.NoticeType(n.Type)
	if noticeType == "" {
		noticeType = client.CustomNotice
	}
	data := copyData(n.LastData)
	occurrences := n.Occurrences
	if occurrences == 0 {
		occurrences = 1
	}
	return &client.Notice{
		ID:            n.ID,
		Type:          noticeType,
		Key:           n.Key,
		FirstOccurred: n.FirstOccurred,
		LastOccurred:  n.LastOccurred,
		LastRepeated:  n.LastRepeated,
		Occurrences:   occurrences,
		LastData:      data,
		RepeatAfter:   n.RepeatAfter,
		ExpireAfter:   n.ExpireAfter,
	}
}

// Notices returns the notices of the container, oldest first.
func (c *Client) Notices(opts NoticesOptions) ([]*client.Notice, error) {
	if err := c.connect(); err != nil {
		return nil, errors.Trace(err)
	}
	types := map[client.NoticeType]bool{}
	for _, t := range opts.Types {
		types[t] = true
	}
	keys := map[string]bool{}
	for _, k := range opts.Keys {
		keys[k] = true
	}
	var result []*client.Notice
	for _, n := range c.container.Notices {
		notice := toClientNotice(n)
		if len(types) > 0 && !types[notice.Type] {
			continue
		}
		if len(keys) > 0 && !keys[notice.Key] {
			continue
		}
		result = append(result, notice)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].LastRepeated.Before(result[j].LastRepeated)
	})
	return result, nil
}

// Notice returns the notice with the given id.
func (c *Client) Notice(id string) (*client.Notice, error) {
	if err := c.connect(); err != nil {
		return nil, errors.Trace(err)
	}
	for _, n := range c.container.Notices {
		if n.ID == id {
			return toClientNotice(n), nil
		}
	}
	return nil, coreerrors.Errorf(coreerrors.NotFound, "cannot find notice with ID %q", id)
}

// Notify records a custom notice, returning its id. Repeating a key updates
// the existing notice.
func (c *Client) Notify(key string, data map[string]string) (string, error) {
	if err := c.connect(); err != nil {
		return "", errors.Trace(err)
	}
	if !ValidCustomKey(key) {
		return "", coreerrors.Errorf(coreerrors.ProtocolError, "invalid custom notice key %q", key)
	}
	now := c.clock.Now()
	notices := append([]state.Notice(nil), c.container.Notices...)
	for i, n := range notices {
		if n.Key != key || (n.Type != "" && n.Type != state.CustomNotice) {
			continue
		}
		n.Occurrences = max(n.Occurrences, 1) + 1
		n.LastOccurred = now
		n.LastRepeated = now
		n.LastData = copyData(data)
		notices[i] = n
		c.container.Notices = notices
		return n.ID, nil
	}
	next := 1
	for _, n := range notices {
		if id, err := strconv.Atoi(n.ID); err == nil && id >= next {
			next = id + 1
		}
	}
	notice := state.Notice{
		ID:            strconv.Itoa(next),
		Key:           key,
		Type:          state.CustomNotice,
		FirstOccurred: now,
		LastOccurred:  now,
		LastRepeated:  now,
		Occurrences:   1,
		LastData:      copyData(data),
	}
	c.container.Notices = append(notices, notice)
	logger.Debugf("container %q notified %q", c.container.Name, key)
	return notice.ID, nil
}

func copyData(data map[string]string) map[string]string {
	if len(data) == 0 {
		return nil
	}
	result := make(map[string]string, len(data))
	for k, v := range data {
		result[k] = v
	}
	return result
}
