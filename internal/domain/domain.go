package domain

// Resource is one inventory entity. Every collection stores its items in this
// shape; collection-specific fields live in Attributes.
type Resource struct {
	ID         int64          `json:"id"`
	Collection string         `json:"-"`
	ParentID   *int64         `json:"-"`
	Name       string         `json:"name,omitempty"`
	GUID       string         `json:"guid,omitempty"`
	Zone       string         `json:"zone,omitempty"`
	Attributes map[string]any `json:"-"`
	CreatedAt  string         `json:"created_at" format:"date-time"`
	UpdatedAt  string         `json:"updated_at" format:"date-time"`
}

// Attr returns a named value, checking the fixed columns before Attributes.
func (r Resource) Attr(name string) (any, bool) {
	switch name {
	case "id":
		return r.ID, true
	case "name":
		return r.Name, true
	case "guid":
		return r.GUID, true
	case "zone":
		return r.Zone, true
	case "created_at":
		return r.CreatedAt, true
	case "updated_at":
		return r.UpdatedAt, true
	}
	v, ok := r.Attributes[name]
	return v, ok
}

type APIKey struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	KeyHash     string   `json:"key_hash"`
	Permissions []string `json:"permissions"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	EventType  string         `json:"event_type"`
	Collection string         `json:"collection,omitempty"`
	ResourceID *int64         `json:"resource_id,omitempty"`
	Actor      string         `json:"actor"`
	Payload    map[string]any `json:"payload,omitempty"`
}
