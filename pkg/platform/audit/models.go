// Package audit models activity-log events and the durable records the
// audit consumer materializes from them.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mssola/useragent"
)

// Action tags what happened. Only creation and authentication are audited;
// product updates and deletes have no action.
type Action string

const (
	ActionRecordCreated Action = "RECORD_CREATED"

	// Emitted by the external auth service onto the same queue.
	ActionUserRegistered Action = "USER_REGISTERED"
	ActionUserLogin      Action = "USER_LOGIN"
)

// Event is produced at the moment of the triggering action and travels through
// the queue as the job payload. It carries no timestamp: OccurredAt is set by
// the consumer when the event is materialized.
type Event struct {
	// ActorID is empty for unauthenticated actions.
	ActorID   string `json:"actor_id,omitempty"`
	Action    Action `json:"action"`
	Detail    string `json:"detail"`
	ClientIP  string `json:"client_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Record is the durable row written for one event. Records are permanent.
type Record struct {
	ID string
	Event
	// Client is a short descriptor parsed from UserAgent, e.g. "Firefox 128.0 (Linux x86_64)".
	Client     string
	OccurredAt time.Time
}

// Store persists materialized records. Append must be idempotent on Record.ID
// so a redelivered job does not write a second row.
type Store interface {
	Append(ctx context.Context, record Record) error
	ListRecent(ctx context.Context, limit int) ([]Record, error)
}

// DescribeClient reduces a User-Agent header to browser, version and platform.
func DescribeClient(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return ""
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		name, _ := ua.Browser()
		return fmt.Sprintf("bot %s", name)
	}

	name, version := ua.Browser()
	desc := strings.TrimSpace(name + " " + version)
	if platform := ua.OS(); platform != "" {
		if desc == "" {
			return platform
		}
		desc = fmt.Sprintf("%s (%s)", desc, platform)
	}
	return desc
}
