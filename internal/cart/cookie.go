package cart

import (
	"time"

	"github.com/fjod/meiduo/internal/domain"
	"github.com/gorilla/securecookie"
)

// CookieName is the client cookie that carries an anonymous cart.
const CookieName = "cart"

type cookieEntry struct {
	Count    int  `json:"count"`
	Selected bool `json:"selected"`
}

// CookieCodec signs and encodes anonymous carts into an opaque cookie value.
type CookieCodec struct {
	sc *securecookie.SecureCookie
}

func NewCookieCodec(secret []byte, maxAge time.Duration) *CookieCodec {
	sc := securecookie.New(secret, nil).
		SetSerializer(securecookie.JSONEncoder{}).
		MaxAge(int(maxAge.Seconds()))
	return &CookieCodec{sc: sc}
}

func (c *CookieCodec) Encode(lines map[int64]domain.CartLine) (string, error) {
	payload := make(map[int64]cookieEntry, len(lines))
	for id, l := range lines {
		payload[id] = cookieEntry{Count: l.Quantity, Selected: l.Selected}
	}
	return c.sc.Encode(CookieName, payload)
}

// Decode never fails: an empty, tampered or malformed token yields an empty cart.
func (c *CookieCodec) Decode(token string) map[int64]domain.CartLine {
	lines := make(map[int64]domain.CartLine)
	if token == "" {
		return lines
	}

	var payload map[int64]cookieEntry
	if err := c.sc.Decode(CookieName, token, &payload); err != nil {
		return lines
	}
	for id, e := range payload {
		if id <= 0 || e.Count <= 0 {
			continue
		}
		lines[id] = domain.CartLine{ProductID: id, Quantity: e.Count, Selected: e.Selected}
	}
	return lines
}
