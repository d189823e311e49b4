package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// object is a decoded JSON object with exact, case-sensitive key lookup.
// encoding/json folds key case when filling structs; the log format does not.
type object map[string]json.RawMessage

func parseObject(b []byte) (object, error) {
	var o object
	if err := json.Unmarshal(b, &o); err != nil {
		return nil, err
	}
	if o == nil {
		return nil, errors.New("expected object, got null")
	}
	return o, nil
}

// required decodes key into dst. An absent or null key is ErrMissingField.
func (o object) required(key string, dst any) error {
	raw, ok := o[key]
	if !ok || isNull(raw) {
		return fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("field %s: %w", key, err)
	}
	return nil
}

// optional decodes key into dst when present and not null.
func (o object) optional(key string, dst any) error {
	raw, ok := o[key]
	if !ok || isNull(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("field %s: %w", key, err)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func (c *CreateNote) UnmarshalJSON(b []byte) error {
	o, err := parseObject(b)
	if err != nil {
		return err
	}
	var v CreateNote
	if err := errors.Join(
		o.required("id", &v.ID),
		o.required("user", &v.User),
		o.required("note", &v.Note),
		o.optional("origin", &v.Origin),
	); err != nil {
		return err
	}
	*c = v
	return nil
}

func (c *UpdateNote) UnmarshalJSON(b []byte) error {
	var v noteChange
	if err := v.decode(b); err != nil {
		return err
	}
	*c = UpdateNote(v)
	return nil
}

func (c *DeleteNote) UnmarshalJSON(b []byte) error {
	var v noteChange
	if err := v.decode(b); err != nil {
		return err
	}
	*c = DeleteNote(v)
	return nil
}

// noteChange has the field set shared by UpdateNote and DeleteNote.
type noteChange struct {
	ID   string
	User string
	Note Note
}

func (v *noteChange) decode(b []byte) error {
	o, err := parseObject(b)
	if err != nil {
		return err
	}
	return errors.Join(
		o.required("id", &v.ID),
		o.required("user", &v.User),
		o.required("note", &v.Note),
	)
}

func (c *CreateIngress) UnmarshalJSON(b []byte) error {
	var v ingressChange
	if err := v.decode(b); err != nil {
		return err
	}
	*c = CreateIngress(v)
	return nil
}

func (c *DeleteIngress) UnmarshalJSON(b []byte) error {
	var v ingressChange
	if err := v.decode(b); err != nil {
		return err
	}
	*c = DeleteIngress(v)
	return nil
}

type ingressChange struct {
	User    string
	Ingress string
	Sub     string
}

func (v *ingressChange) decode(b []byte) error {
	o, err := parseObject(b)
	if err != nil {
		return err
	}
	return errors.Join(
		o.required("user", &v.User),
		o.required("ingress", &v.Ingress),
		o.required("sub", &v.Sub),
	)
}

func (c *UserSubscriptionPaid) UnmarshalJSON(b []byte) error {
	var v subscriptionChange
	if err := v.decode(b); err != nil {
		return err
	}
	*c = UserSubscriptionPaid(v)
	return nil
}

func (c *UserSubscriptionCancel) UnmarshalJSON(b []byte) error {
	var v subscriptionChange
	if err := v.decode(b); err != nil {
		return err
	}
	*c = UserSubscriptionCancel(v)
	return nil
}

func (c *UserSubscriptionEnd) UnmarshalJSON(b []byte) error {
	var v subscriptionChange
	if err := v.decode(b); err != nil {
		return err
	}
	*c = UserSubscriptionEnd(v)
	return nil
}

type subscriptionChange struct {
	User  string
	SubID string
}

func (v *subscriptionChange) decode(b []byte) error {
	o, err := parseObject(b)
	if err != nil {
		return err
	}
	return errors.Join(
		o.required("user", &v.User),
		o.required("subId", &v.SubID),
	)
}

func (c *UserSyncPull) UnmarshalJSON(b []byte) error {
	o, err := parseObject(b)
	if err != nil {
		return err
	}
	var v UserSyncPull
	if err := errors.Join(
		o.required("user", &v.User),
		o.required("tokenTs", &v.TokenTs),
		o.required("fromSeq", &v.FromSeq),
	); err != nil {
		return err
	}
	*c = v
	return nil
}

func (c *UserSyncCreateToken) UnmarshalJSON(b []byte) error {
	o, err := parseObject(b)
	if err != nil {
		return err
	}
	var v UserSyncCreateToken
	if err := errors.Join(
		o.required("user", &v.User),
		o.required("tokenTs", &v.TokenTs),
	); err != nil {
		return err
	}
	*c = v
	return nil
}

func (n *Note) UnmarshalJSON(b []byte) error {
	o, err := parseObject(b)
	if err != nil {
		return err
	}
	var v Note
	if err := errors.Join(
		o.required("realTs", &v.RealTs),
		o.required("content", &v.Content),
		o.optional("private", &v.Private),
		o.optional("deliverableTs", &v.DeliverableTs),
		o.optional("forwardLinks", &v.ForwardLinks),
	); err != nil {
		return err
	}
	*n = v
	return nil
}

func (l *NoteLink) UnmarshalJSON(b []byte) error {
	o, err := parseObject(b)
	if err != nil {
		return err
	}
	var v NoteLink
	if err := errors.Join(
		o.required("username", &v.Username),
		o.required("fullId", &v.FullID),
		o.required("position", &v.Position),
		o.required("text", &v.Text),
	); err != nil {
		return err
	}
	*l = v
	return nil
}
