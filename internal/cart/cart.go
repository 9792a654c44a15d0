package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/fjod/meiduo/internal/domain"
	"golang.org/x/sync/singleflight"
)

var (
	ErrInvalidProduct  = errors.New("product id must be positive")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrCartFull        = errors.New("anonymous cart is full")
)

// MaxAnonymousLines bounds the distinct products an anonymous cart may hold so
// its encoded cookie stays under the 4096-byte browser limit.
const MaxAnonymousLines = 40

// Cart is the per-identity view of the cart store. Anonymous carts are
// mutated in memory and persisted by handing Token back to the client.
type Cart interface {
	Add(ctx context.Context, productID int64, quantity int, selected bool) error
	Replace(ctx context.Context, productID int64, quantity int, selected bool) error
	Remove(ctx context.Context, productID int64) error
	SetAllSelected(ctx context.Context, selected bool) error
	List(ctx context.Context) ([]domain.CartLine, error)
	// Token is the encoded anonymous cart. Authenticated carts return "".
	Token() (string, error)
}

type Service struct {
	store *RedisStore
	codec *CookieCodec
	sfg   singleflight.Group // coalesces concurrent reads of the same user's cart

	// writes is bumped after every write so a read that began before it is
	// never shared with a caller that saw the write complete.
	writes atomic.Uint64
}

const sharedReadTimeout = 5 * time.Second

func NewService(store *RedisStore, codec *CookieCodec) *Service {
	return &Service{store: store, codec: codec}
}

// Open returns the cart for identity. token is only consulted for anonymous identities.
func (s *Service) Open(identity domain.Identity, token string) Cart {
	if identity.IsAnonymous() {
		return &anonymousCart{codec: s.codec, lines: s.codec.Decode(token)}
	}
	return &userCart{svc: s, userID: identity.UserID}
}

// Merge folds an anonymous cart into the user's stored cart. For every product
// in the anonymous cart the stored quantity and selection are overwritten;
// products only present in the stored cart are left alone.
func (s *Service) Merge(ctx context.Context, userID int64, token string) (int, error) {
	lines := s.codec.Decode(token)
	if len(lines) == 0 {
		return 0, nil
	}

	merged := make([]domain.CartLine, 0, len(lines))
	for _, l := range lines {
		merged = append(merged, l)
	}
	defer s.writes.Add(1)
	if err := s.store.Overwrite(ctx, userID, merged); err != nil {
		return 0, fmt.Errorf("merge cart for user %d: %w", userID, err)
	}
	return len(merged), nil
}

func validate(productID int64, quantity int) error {
	if productID <= 0 {
		return ErrInvalidProduct
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}

type userCart struct {
	svc    *Service
	userID int64
}

func (c *userCart) Add(ctx context.Context, productID int64, quantity int, selected bool) error {
	if err := validate(productID, quantity); err != nil {
		return err
	}
	defer c.svc.writes.Add(1)
	return c.svc.store.Add(ctx, c.userID, productID, quantity, selected)
}

func (c *userCart) Replace(ctx context.Context, productID int64, quantity int, selected bool) error {
	if err := validate(productID, quantity); err != nil {
		return err
	}
	defer c.svc.writes.Add(1)
	return c.svc.store.Replace(ctx, c.userID, productID, quantity, selected)
}

func (c *userCart) Remove(ctx context.Context, productID int64) error {
	defer c.svc.writes.Add(1)
	return c.svc.store.Remove(ctx, c.userID, productID)
}

func (c *userCart) SetAllSelected(ctx context.Context, selected bool) error {
	defer c.svc.writes.Add(1)
	return c.svc.store.SetAllSelected(ctx, c.userID, selected)
}

// List shares one Redis read between concurrent callers of the same user. The
// shared read is detached from any single caller's context; each caller still
// stops waiting when its own ctx is done.
func (c *userCart) List(ctx context.Context) ([]domain.CartLine, error) {
	key := fmt.Sprintf("%d:%d", c.userID, c.svc.writes.Load())
	ch := c.svc.sfg.DoChan(key, func() (interface{}, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedReadTimeout)
		defer cancel()
		return c.svc.store.List(readCtx, c.userID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		shared := res.Val.([]domain.CartLine)
		return append([]domain.CartLine(nil), shared...), nil
	}
}

func (c *userCart) Token() (string, error) {
	return "", nil
}

type anonymousCart struct {
	codec *CookieCodec
	lines map[int64]domain.CartLine
}

func (c *anonymousCart) Add(_ context.Context, productID int64, quantity int, selected bool) error {
	if err := validate(productID, quantity); err != nil {
		return err
	}
	if err := c.admit(productID); err != nil {
		return err
	}
	line := c.lines[productID]
	line.ProductID = productID
	line.Quantity += quantity
	line.Selected = selected
	c.lines[productID] = line
	return nil
}

func (c *anonymousCart) Replace(_ context.Context, productID int64, quantity int, selected bool) error {
	if err := validate(productID, quantity); err != nil {
		return err
	}
	if err := c.admit(productID); err != nil {
		return err
	}
	c.lines[productID] = domain.CartLine{ProductID: productID, Quantity: quantity, Selected: selected}
	return nil
}

func (c *anonymousCart) admit(productID int64) error {
	if _, ok := c.lines[productID]; !ok && len(c.lines) >= MaxAnonymousLines {
		return ErrCartFull
	}
	return nil
}

func (c *anonymousCart) Remove(_ context.Context, productID int64) error {
	delete(c.lines, productID)
	return nil
}

func (c *anonymousCart) SetAllSelected(_ context.Context, selected bool) error {
	for id, l := range c.lines {
		l.Selected = selected
		c.lines[id] = l
	}
	return nil
}

func (c *anonymousCart) List(context.Context) ([]domain.CartLine, error) {
	lines := make([]domain.CartLine, 0, len(c.lines))
	for _, l := range c.lines {
		lines = append(lines, l)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines, nil
}

func (c *anonymousCart) Token() (string, error) {
	return c.codec.Encode(c.lines)
}
