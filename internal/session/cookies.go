package session

import "encoding/json"

// CookieEntry is one cookie jar entry, per spec.md §3/§6.2.
type CookieEntry struct {
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
	Expires  string
}

// CookieJar maps cookie name to entry.
type CookieJar map[string]CookieEntry

// Values returns a flat name->value map, used by the provenance finder.
func (j CookieJar) Values() map[string]string {
	out := make(map[string]string, len(j))
	for name, entry := range j {
		out[name] = entry.Value
	}
	return out
}

// ParseCookieBundle parses the JSON document described in spec.md §6.2:
// an object whose values are either a literal string (the cookie value)
// or an object with {value, domain?, path?, secure?, httpOnly?, expires?}.
func ParseCookieBundle(data []byte) (CookieJar, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	jar := make(CookieJar, len(raw))
	for name, msg := range raw {
		var asString string
		if err := json.Unmarshal(msg, &asString); err == nil {
			jar[name] = CookieEntry{Value: asString}
			continue
		}
		var entry CookieEntry
		var asObject struct {
			Value    string `json:"value"`
			Domain   string `json:"domain"`
			Path     string `json:"path"`
			Secure   bool   `json:"secure"`
			HTTPOnly bool   `json:"httpOnly"`
			Expires  string `json:"expires"`
		}
		if err := json.Unmarshal(msg, &asObject); err != nil {
			return nil, err
		}
		entry = CookieEntry{
			Value:    asObject.Value,
			Domain:   asObject.Domain,
			Path:     asObject.Path,
			Secure:   asObject.Secure,
			HTTPOnly: asObject.HTTPOnly,
			Expires:  asObject.Expires,
		}
		jar[name] = entry
	}
	return jar, nil
}
