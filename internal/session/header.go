package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dunglas/httpsfv"
)

// ParseHeader extracts the session handle from a Cart-Session header
// (RFC 8941 Dictionary).
//
// Examples:
//   - token="abc"                      → {Token: abc}
//   - token="abc";cart="c1";v="1.4.0"  → {Token: abc, CartID: c1, Version: 1.4.0}
//   - token="abc", other=1             → {Token: abc} (unknown members ignored)
//
// An empty header is not an error: it asks for a new session.
func ParseHeader(header string) (Handle, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Handle{}, nil
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return Handle{}, fmt.Errorf("invalid Cart-Session header: %w", err)
	}

	member, ok := dict.Get("token")
	if !ok {
		return Handle{}, errors.New("token key not found in Cart-Session header")
	}
	item, ok := member.(httpsfv.Item)
	if !ok {
		return Handle{}, errors.New("token value must be an item")
	}
	token, ok := item.Value.(string)
	if !ok {
		return Handle{}, errors.New("token value must be a string")
	}

	h := Handle{Token: token}
	if h.CartID, err = stringParam(item.Params, "cart"); err != nil {
		return Handle{}, err
	}
	if h.Version, err = stringParam(item.Params, "v"); err != nil {
		return Handle{}, err
	}
	return h, nil
}

func stringParam(params *httpsfv.Params, key string) (string, error) {
	if params == nil {
		return "", nil
	}
	v, ok := params.Get(key)
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s parameter must be a string", key)
	}
	return s, nil
}

// FormatHeader renders the response Cart-Session header for a session.
func FormatHeader(token, cartID string) string {
	item := httpsfv.NewItem(token)
	if cartID != "" {
		item.Params.Add("cart", cartID)
	}
	dict := httpsfv.NewDictionary()
	dict.Add("token", item)

	out, err := httpsfv.Marshal(dict)
	if err != nil {
		// Only non-ASCII strings fail to serialize; tokens and cart IDs never
		// contain them, so fall back to the bare token.
		return fmt.Sprintf("token=%q", token)
	}
	return out
}
