// Package events models the payloads carried by the remote log.
//
// Each log value is a JSON document {"ts": ..., "data": {"type": ..., ...}}.
// The set of content kinds is closed: a value whose kind is not listed here is
// reported as undecoded rather than guessed at.
package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownKind is returned for a "type" tag this client does not model.
	ErrUnknownKind = errors.New("unknown event kind")
	// ErrMissingField is returned when a required field is absent or null.
	ErrMissingField = errors.New("missing field")
)

// Kind identifies a content variant on the wire.
type Kind string

const (
	KindCreateNote             Kind = "create_note"
	KindUpdateNote             Kind = "update_note"
	KindDeleteNote             Kind = "delete_note"
	KindCreateIngress          Kind = "create_ingress"
	KindDeleteIngress          Kind = "delete_ingress"
	KindUserSubscriptionPaid   Kind = "user_subscription_paid"
	KindUserSubscriptionCancel Kind = "user_subscription_cancel"
	KindUserSubscriptionEnd    Kind = "user_subscription_end"
	KindUserSyncPull           Kind = "user_sync_pull"
	KindUserSyncCreateToken    Kind = "user_sync_create_token"
)

// Kinds lists every content kind the decoder understands.
var Kinds = []Kind{
	KindCreateNote,
	KindUpdateNote,
	KindDeleteNote,
	KindCreateIngress,
	KindDeleteIngress,
	KindUserSubscriptionPaid,
	KindUserSubscriptionCancel,
	KindUserSubscriptionEnd,
	KindUserSyncPull,
	KindUserSyncCreateToken,
}

// LogEntry is one structured event.
type LogEntry struct {
	Ts   uint64  `json:"ts"`
	Data Content `json:"data"`
}

// Content is implemented by every content variant.
type Content interface {
	Kind() Kind
}

// CreateNote records a newly created note.
type CreateNote struct {
	ID     string  `json:"id"`
	User   string  `json:"user"`
	Note   Note    `json:"note"`
	Origin *Origin `json:"origin"`
}

// UpdateNote records an edit of an existing note.
type UpdateNote struct {
	ID   string `json:"id"`
	User string `json:"user"`
	Note Note   `json:"note"`
}

// DeleteNote records a note deletion; Note holds the last stored state.
type DeleteNote struct {
	ID   string `json:"id"`
	User string `json:"user"`
	Note Note   `json:"note"`
}

type CreateIngress struct {
	User    string `json:"user"`
	Ingress string `json:"ingress"`
	Sub     string `json:"sub"`
}

type DeleteIngress struct {
	User    string `json:"user"`
	Ingress string `json:"ingress"`
	Sub     string `json:"sub"`
}

type UserSubscriptionPaid struct {
	User  string `json:"user"`
	SubID string `json:"subId"`
}

type UserSubscriptionCancel struct {
	User  string `json:"user"`
	SubID string `json:"subId"`
}

type UserSubscriptionEnd struct {
	User  string `json:"user"`
	SubID string `json:"subId"`
}

// UserSyncPull is logged by the server for every sync pull, including this client's.
type UserSyncPull struct {
	User    string `json:"user"`
	TokenTs uint64 `json:"tokenTs"`
	FromSeq string `json:"fromSeq"`
}

type UserSyncCreateToken struct {
	User    string `json:"user"`
	TokenTs uint64 `json:"tokenTs"`
}

func (CreateNote) Kind() Kind             { return KindCreateNote }
func (UpdateNote) Kind() Kind             { return KindUpdateNote }
func (DeleteNote) Kind() Kind             { return KindDeleteNote }
func (CreateIngress) Kind() Kind          { return KindCreateIngress }
func (DeleteIngress) Kind() Kind          { return KindDeleteIngress }
func (UserSubscriptionPaid) Kind() Kind   { return KindUserSubscriptionPaid }
func (UserSubscriptionCancel) Kind() Kind { return KindUserSubscriptionCancel }
func (UserSubscriptionEnd) Kind() Kind    { return KindUserSubscriptionEnd }
func (UserSyncPull) Kind() Kind           { return KindUserSyncPull }
func (UserSyncCreateToken) Kind() Kind    { return KindUserSyncCreateToken }

// Note is the stored form of a note.
type Note struct {
	RealTs        uint64     `json:"realTs"`
	Content       string     `json:"content"`
	Private       *bool      `json:"private"`
	DeliverableTs *uint64    `json:"deliverableTs"`
	ForwardLinks  []NoteLink `json:"forwardLinks"`
}

// NoteLink is a reference from a note to another user's note.
type NoteLink struct {
	Username string `json:"username"`
	FullID   string `json:"fullId"`
	Position uint64 `json:"position"`
	Text     string `json:"text"`
}

// OriginKind identifies where a note was created.
type OriginKind string

const (
	OriginWeb      OriginKind = "web"
	OriginTelegram OriginKind = "telegram"
)

// Origin describes the client a note came from. TelegramUserID is only set for OriginTelegram.
type Origin struct {
	Kind           OriginKind
	TelegramUserID uint64
}

func (o Origin) MarshalJSON() ([]byte, error) {
	switch o.Kind {
	case OriginWeb:
		return json.Marshal(struct {
			Type OriginKind `json:"type"`
		}{o.Kind})
	case OriginTelegram:
		return json.Marshal(struct {
			Type   OriginKind `json:"type"`
			UserID uint64     `json:"userId"`
		}{o.Kind, o.TelegramUserID})
	default:
		return nil, fmt.Errorf("%w: origin %q", ErrUnknownKind, o.Kind)
	}
}

func (o *Origin) UnmarshalJSON(data []byte) error {
	obj, err := parseObject(data)
	if err != nil {
		return err
	}
	var kind OriginKind
	if err := obj.required("type", &kind); err != nil {
		return fmt.Errorf("origin: %w", err)
	}
	switch kind {
	case OriginWeb:
		*o = Origin{Kind: OriginWeb}
	case OriginTelegram:
		var userID uint64
		if err := obj.required("userId", &userID); err != nil {
			return fmt.Errorf("origin: %w", err)
		}
		*o = Origin{Kind: OriginTelegram, TelegramUserID: userID}
	default:
		return fmt.Errorf("%w: origin %q", ErrUnknownKind, kind)
	}
	return nil
}

func newContent(kind Kind) (Content, bool) {
	switch kind {
	case KindCreateNote:
		return &CreateNote{}, true
	case KindUpdateNote:
		return &UpdateNote{}, true
	case KindDeleteNote:
		return &DeleteNote{}, true
	case KindCreateIngress:
		return &CreateIngress{}, true
	case KindDeleteIngress:
		return &DeleteIngress{}, true
	case KindUserSubscriptionPaid:
		return &UserSubscriptionPaid{}, true
	case KindUserSubscriptionCancel:
		return &UserSubscriptionCancel{}, true
	case KindUserSubscriptionEnd:
		return &UserSubscriptionEnd{}, true
	case KindUserSyncPull:
		return &UserSyncPull{}, true
	case KindUserSyncCreateToken:
		return &UserSyncCreateToken{}, true
	}
	return nil, false
}

// MarshalJSON writes the content with its "type" tag inlined.
func (e LogEntry) MarshalJSON() ([]byte, error) {
	if e.Data == nil {
		return nil, fmt.Errorf("%w: data", ErrMissingField)
	}
	body, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	tag, err := json.Marshal(e.Data.Kind())
	if err != nil {
		return nil, err
	}

	var data bytes.Buffer
	data.WriteString(`{"type":`)
	data.Write(tag)
	if inner := bytes.TrimSpace(body); len(inner) > 2 {
		data.WriteByte(',')
		data.Write(inner[1:])
	} else {
		data.WriteByte('}')
	}

	return json.Marshal(struct {
		Ts   uint64          `json:"ts"`
		Data json.RawMessage `json:"data"`
	}{e.Ts, data.Bytes()})
}

// UnmarshalJSON dispatches on data.type to the matching content variant.
// Keys match case-sensitively and every non-optional field must be present.
func (e *LogEntry) UnmarshalJSON(b []byte) error {
	envelope, err := parseObject(b)
	if err != nil {
		return err
	}
	var ts uint64
	if err := envelope.required("ts", &ts); err != nil {
		return err
	}
	raw, ok := envelope["data"]
	if !ok || isNull(raw) {
		return fmt.Errorf("%w: data", ErrMissingField)
	}

	data, err := parseObject(raw)
	if err != nil {
		return fmt.Errorf("field data: %w", err)
	}
	var kind Kind
	if err := data.required("type", &kind); err != nil {
		return fmt.Errorf("data: %w", err)
	}
	content, ok := newContent(kind)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err := json.Unmarshal(raw, content); err != nil {
		return fmt.Errorf("decode %s: %w", kind, err)
	}

	e.Ts = ts
	e.Data = deref(content)
	return nil
}

// deref stores variants by value so callers can type-switch on plain struct types.
func deref(c Content) Content {
	switch v := c.(type) {
	case *CreateNote:
		return *v
	case *UpdateNote:
		return *v
	case *DeleteNote:
		return *v
	case *CreateIngress:
		return *v
	case *DeleteIngress:
		return *v
	case *UserSubscriptionPaid:
		return *v
	case *UserSubscriptionCancel:
		return *v
	case *UserSubscriptionEnd:
		return *v
	case *UserSyncPull:
		return *v
	case *UserSyncCreateToken:
		return *v
	}
	return c
}
