package lexicon

import (
	"encoding/json"
	"fmt"
)

// ProfileRecord is the record body for app.bsky.actor.profile. Fields this
// service does not manage (pinnedPost, labels, createdAt written by other
// clients, ...) are kept in extra and written back untouched.
type ProfileRecord struct {
	DisplayName string
	Description string
	Avatar      *BlobRef
	Banner      *BlobRef
	CreatedAt   string

	extra map[string]json.RawMessage
}

var managedProfileKeys = []string{"$type", "displayName", "description", "avatar", "banner", "createdAt"}

// Clone returns a deep-enough copy for building an update candidate.
func (p ProfileRecord) Clone() ProfileRecord {
	out := p
	if p.Avatar != nil {
		a := *p.Avatar
		out.Avatar = &a
	}
	if p.Banner != nil {
		b := *p.Banner
		out.Banner = &b
	}
	if p.extra != nil {
		out.extra = make(map[string]json.RawMessage, len(p.extra))
		for k, v := range p.extra {
			out.extra[k] = v
		}
	}
	return out
}

// MarshalJSON writes managed fields over any preserved unknown fields.
func (p ProfileRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.extra)+6)
	for k, v := range p.extra {
		out[k] = v
	}
	out["$type"] = CollectionProfile
	if p.DisplayName != "" {
		out["displayName"] = p.DisplayName
	}
	if p.Description != "" {
		out["description"] = p.Description
	}
	if p.Avatar != nil {
		out["avatar"] = p.Avatar
	}
	if p.Banner != nil {
		out["banner"] = p.Banner
	}
	if p.CreatedAt != "" {
		out["createdAt"] = p.CreatedAt
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a profile record, remembering unknown fields.
func (p *ProfileRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var rec ProfileRecord
	if err := unmarshalField(raw, "displayName", &rec.DisplayName); err != nil {
		return err
	}
	if err := unmarshalField(raw, "description", &rec.Description); err != nil {
		return err
	}
	if err := unmarshalField(raw, "createdAt", &rec.CreatedAt); err != nil {
		return err
	}
	if v, ok := raw["avatar"]; ok {
		rec.Avatar = new(BlobRef)
		if err := json.Unmarshal(v, rec.Avatar); err != nil {
			return fmt.Errorf("avatar: %w", err)
		}
	}
	if v, ok := raw["banner"]; ok {
		rec.Banner = new(BlobRef)
		if err := json.Unmarshal(v, rec.Banner); err != nil {
			return fmt.Errorf("banner: %w", err)
		}
	}

	for _, k := range managedProfileKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		rec.extra = raw
	}

	*p = rec
	return nil
}

func unmarshalField(raw map[string]json.RawMessage, key string, dst *string) error {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}
