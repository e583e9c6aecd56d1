// Package services – GiftService
//
// This file implements GiftService, which owns the gift-unit lifecycle and the
// chain-linkage algorithms: creating roots and continuations, claiming,
// availability queries and chain traversal. Every state change is published
// to an optional Broadcaster after the database transaction commits.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// carry gift/order identifiers where applicable.
package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-giftchain-backend/internal/domain"
	"github.com/tbourn/go-giftchain-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	defaultChainMaxDepth = 1000
	gifterNameMaxLen     = 120
)

// MaxOrderGiftUnits caps the gift units one order may create.
const MaxOrderGiftUnits = 100

// Broadcaster receives gift events once they are durable. The realtime hub
// implements it; a nil Broadcaster disables publishing.
type Broadcaster interface {
	GiftCreated(g domain.GiftUnit)
	GiftClaimed(giftID string, claimedAt time.Time)
	ChainContinued(parentID string, continuedAt time.Time, child domain.GiftUnit)
}

// CreateGiftInput describes a gift unit to create. ContinuedFromGiftUnitID
// makes the new unit a continuation of an existing gift.
type CreateGiftInput struct {
	ProductID               string     `json:"product_id"   binding:"required"`
	ProductName             string     `json:"product_name" binding:"required"`
	ProductType             *string    `json:"product_type,omitempty"`
	Quantity                int        `json:"quantity"`
	OriginalOrderID         string     `json:"original_order_id" binding:"required"`
	GiftedByCustomerID      *string    `json:"gifted_by_customer_id,omitempty"`
	GiftedByName            *string    `json:"gifted_by_name,omitempty"`
	ContinuedFromGiftUnitID *string    `json:"continued_from_gift_unit_id,omitempty"`
	ExpiresAt               *time.Time `json:"expires_at,omitempty"`
}

// OrderGiftOptions carries the gifter identity and optional parent for
// CreateGiftsFromOrder.
type OrderGiftOptions struct {
	CustomerID        *string
	GifterName        *string
	ClaimedGiftUnitID *string
}

// ChainHistory is the chain around one gift unit. Lineage runs from the root
// to the requested gift inclusive; Continuations holds every descendant in
// breadth-first order sorted by chain position, then creation time.
// Branching is set when any visited node has more than one continuation.
type ChainHistory struct {
	GiftUnitID    string            `json:"gift_unit_id"`
	Lineage       []domain.GiftUnit `json:"lineage"`
	Continuations []domain.GiftUnit `json:"continuations"`
	Branching     bool              `json:"branching"`
	Truncated     bool              `json:"truncated"`
}

// GiftService coordinates gift persistence and event publication.
type GiftService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Events receives committed gift events; may be nil.
	Events Broadcaster
	// Log is the service logger.
	Log zerolog.Logger

	// DefaultTTL, when positive, sets ExpiresAt on gifts created without one.
	DefaultTTL time.Duration
	// MaxChainDepth bounds chain traversal in either direction.
	MaxChainDepth int
	// NameLocale drives gifter-name casing; English when unset.
	NameLocale language.Tag

	// Now is the clock; time.Now when nil.
	Now func() time.Time
}

// NewGiftService constructs a GiftService with default limits.
func NewGiftService(db *gorm.DB, events Broadcaster, log zerolog.Logger) *GiftService {
	return &GiftService{
		DB:            db,
		Events:        events,
		Log:           log,
		MaxChainDepth: defaultChainMaxDepth,
		NameLocale:    language.Und,
	}
}

func (s *GiftService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *GiftService) tracer() trace.Tracer { return otel.Tracer("services/GiftService") }

// FindAvailable returns every claimable gift unit, newest first.
func (s *GiftService) FindAvailable(ctx context.Context) ([]domain.GiftUnit, error) {
	ctx, span := s.tracer().Start(ctx, "FindAvailable")
	defer span.End()
	return repo.ListAvailableGifts(ctx, s.DB, s.now())
}

// FindAvailableByProduct returns the claimable gift units for productID,
// oldest first.
func (s *GiftService) FindAvailableByProduct(ctx context.Context, productID string) ([]domain.GiftUnit, error) {
	ctx, span := s.tracer().Start(ctx, "FindAvailableByProduct",
		trace.WithAttributes(attribute.String("product.id", productID)),
	)
	defer span.End()

	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, ErrInvalidInput
	}
	return repo.ListAvailableGiftsByProduct(ctx, s.DB, productID, s.now())
}

// FindByID returns a gift unit or ErrGiftNotFound.
func (s *GiftService) FindByID(ctx context.Context, id string) (*domain.GiftUnit, error) {
	ctx, span := s.tracer().Start(ctx, "FindByID",
		trace.WithAttributes(attribute.String("gift.id", id)),
	)
	defer span.End()

	g, err := repo.GetGiftUnit(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrGiftNotFound
	}
	return g, err
}

// GetAvailableCount counts claimable gift units.
func (s *GiftService) GetAvailableCount(ctx context.Context) (int64, error) {
	ctx, span := s.tracer().Start(ctx, "GetAvailableCount")
	defer span.End()
	return repo.CountAvailableGifts(ctx, s.DB, s.now())
}

// HasGiftsForOrder reports whether orderID already paid for any gift unit.
func (s *GiftService) HasGiftsForOrder(ctx context.Context, orderID string) (bool, error) {
	n, err := repo.CountGiftsByOrder(ctx, s.DB, orderID)
	return n > 0, err
}

// RecentActivity returns up to limit gift units of any status, newest first.
func (s *GiftService) RecentActivity(ctx context.Context, limit int) ([]domain.GiftUnit, error) {
	ctx, span := s.tracer().Start(ctx, "RecentActivity",
		trace.WithAttributes(attribute.Int("limit", limit)),
	)
	defer span.End()
	return repo.ListRecentGifts(ctx, s.DB, limit)
}

// CreateGiftUnit persists a new AVAILABLE gift unit. With a parent id the
// parent must exist; the child gets parent position + 1, the parent is
// stamped continued and gains the child in its forward references, all in
// one transaction.
func (s *GiftService) CreateGiftUnit(ctx context.Context, in CreateGiftInput) (*domain.GiftUnit, error) {
	ctx, span := s.tracer().Start(ctx, "CreateGiftUnit",
		trace.WithAttributes(
			attribute.String("product.id", in.ProductID),
			attribute.String("order.id", in.OriginalOrderID),
		),
	)
	defer span.End()

	if err := s.validate(&in); err != nil {
		return nil, err
	}

	now := s.now()
	var child *domain.GiftUnit
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var parent *domain.GiftUnit
		if in.ContinuedFromGiftUnitID != nil {
			p, err := s.loadParent(ctx, tx, *in.ContinuedFromGiftUnitID, now)
			if err != nil {
				return err
			}
			parent = p
		}
		g, err := s.insert(ctx, tx, in, parent, now)
		if err != nil {
			return err
		}
		child = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishCreated(*child, now)
	return child, nil
}

// ClaimGiftUnit moves giftID from AVAILABLE to CLAIMED for orderID. The check
// and the transition are one conditional update, so of two concurrent claims
// exactly one succeeds; the other gets ErrGiftNotAvailable.
func (s *GiftService) ClaimGiftUnit(ctx context.Context, giftID, orderID string, customerID *string) (*domain.GiftUnit, error) {
	ctx, span := s.tracer().Start(ctx, "ClaimGiftUnit",
		trace.WithAttributes(
			attribute.String("gift.id", giftID),
			attribute.String("order.id", orderID),
		),
	)
	defer span.End()

	giftID = strings.TrimSpace(giftID)
	orderID = strings.TrimSpace(orderID)
	if giftID == "" || orderID == "" {
		return nil, ErrInvalidInput
	}
	customerID = trimOptional(customerID)

	now := s.now()
	switch err := repo.ClaimGiftUnit(ctx, s.DB, giftID, orderID, customerID, now); {
	case err == nil:
	case errors.Is(err, repo.ErrNotFound):
		giftClaims.WithLabelValues("not_found").Inc()
		return nil, ErrGiftNotFound
	case errors.Is(err, repo.ErrStateConflict):
		giftClaims.WithLabelValues("not_available").Inc()
		return nil, ErrGiftNotAvailable
	default:
		giftClaims.WithLabelValues("error").Inc()
		return nil, err
	}
	giftClaims.WithLabelValues("claimed").Inc()

	if s.Events != nil {
		s.Events.GiftClaimed(giftID, now)
	}

	g, err := repo.GetGiftUnit(ctx, s.DB, giftID)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// CreateGiftsFromOrder expands each line into Quantity single-unit gifts paid
// by orderID. When opts.ClaimedGiftUnitID is set every new gift continues that
// one parent (parallel siblings). The batch is one transaction; events are
// published after commit.
func (s *GiftService) CreateGiftsFromOrder(ctx context.Context, orderID string, items []OrderItem, opts OrderGiftOptions) ([]domain.GiftUnit, error) {
	ctx, span := s.tracer().Start(ctx, "CreateGiftsFromOrder",
		trace.WithAttributes(
			attribute.String("order.id", orderID),
			attribute.Int("items", len(items)),
		),
	)
	defer span.End()

	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, ErrInvalidInput
	}
	opts.ClaimedGiftUnitID = trimOptional(opts.ClaimedGiftUnitID)

	units := 0
	for _, it := range items {
		if it.Quantity < 0 || it.Quantity > MaxOrderGiftUnits-units {
			return nil, ErrInvalidInput
		}
		units += it.Quantity
	}

	inputs := make([]CreateGiftInput, 0, units)
	for _, it := range items {
		for i := 0; i < it.Quantity; i++ {
			in := CreateGiftInput{
				ProductID:               it.ProductID,
				ProductName:             it.ProductName,
				ProductType:             it.ProductType,
				Quantity:                1,
				OriginalOrderID:         orderID,
				GiftedByCustomerID:      opts.CustomerID,
				GiftedByName:            opts.GifterName,
				ContinuedFromGiftUnitID: opts.ClaimedGiftUnitID,
			}
			if err := s.validate(&in); err != nil {
				return nil, err
			}
			inputs = append(inputs, in)
		}
	}
	if len(inputs) == 0 {
		return []domain.GiftUnit{}, nil
	}

	now := s.now()
	created := make([]domain.GiftUnit, 0, len(inputs))
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var parent *domain.GiftUnit
		if opts.ClaimedGiftUnitID != nil {
			p, err := s.loadParent(ctx, tx, *opts.ClaimedGiftUnitID, now)
			if err != nil {
				return err
			}
			parent = p
		}
		for _, in := range inputs {
			g, err := s.insert(ctx, tx, in, parent, now)
			if err != nil {
				return err
			}
			created = append(created, *g)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, g := range created {
		s.publishCreated(g, now)
	}
	return created, nil
}

// GetChainHistory returns the chain containing giftID. Back-references are
// followed to the root and forward references breadth-first to every
// descendant. Traversal stops at MaxChainDepth levels in either direction and
// never revisits a node.
func (s *GiftService) GetChainHistory(ctx context.Context, giftID string) (*ChainHistory, error) {
	ctx, span := s.tracer().Start(ctx, "GetChainHistory",
		trace.WithAttributes(attribute.String("gift.id", giftID)),
	)
	defer span.End()

	start, err := s.FindByID(ctx, giftID)
	if err != nil {
		return nil, err
	}

	maxDepth := s.MaxChainDepth
	if maxDepth <= 0 {
		maxDepth = defaultChainMaxDepth
	}

	h := &ChainHistory{GiftUnitID: start.ID}
	seen := map[string]struct{}{start.ID: {}}

	// Backward: gift → root, reversed at the end.
	lineage := []domain.GiftUnit{*start}
	cur := start
	for !cur.IsRoot() {
		if len(lineage) > maxDepth {
			h.Truncated = true
			break
		}
		pid := *cur.ContinuedFromGiftUnitID
		if _, dup := seen[pid]; dup {
			s.Log.Warn().Str("gift_id", giftID).Str("parent_id", pid).Msg("chain cycle detected")
			break
		}
		p, err := repo.GetGiftUnit(ctx, s.DB, pid)
		if errors.Is(err, repo.ErrNotFound) {
			s.Log.Warn().Str("gift_id", cur.ID).Str("parent_id", pid).Msg("dangling chain back-reference")
			break
		}
		if err != nil {
			return nil, err
		}
		seen[p.ID] = struct{}{}
		lineage = append(lineage, *p)
		cur = p
	}
	for i, j := 0, len(lineage)-1; i < j; i, j = i+1, j-1 {
		lineage[i], lineage[j] = lineage[j], lineage[i]
	}
	h.Lineage = lineage
	for _, g := range lineage {
		if len(g.ContinuedByGiftUnitIDs) > 1 {
			h.Branching = true
		}
	}

	// Forward: breadth-first over continuation ids.
	h.Continuations = []domain.GiftUnit{}
	frontier := []domain.GiftUnit{*start}
	for depth := 0; len(frontier) > 0; depth++ {
		if depth >= maxDepth {
			for _, n := range frontier {
				if len(n.ContinuedByGiftUnitIDs) > 0 {
					h.Truncated = true
				}
			}
			break
		}
		var ids []string
		for _, n := range frontier {
			if len(n.ContinuedByGiftUnitIDs) > 1 {
				h.Branching = true
			}
			for _, id := range n.ContinuedByGiftUnitIDs {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
		next, err := repo.ListGiftUnitsByIDs(ctx, s.DB, ids)
		if err != nil {
			return nil, err
		}
		h.Continuations = append(h.Continuations, next...)
		frontier = next
	}
	sort.SliceStable(h.Continuations, func(i, j int) bool {
		a, b := h.Continuations[i], h.Continuations[j]
		if a.ChainPosition != b.ChainPosition {
			return a.ChainPosition < b.ChainPosition
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})

	return h, nil
}

// loadParent fetches the parent inside tx and stamps it continued.
func (s *GiftService) loadParent(ctx context.Context, tx *gorm.DB, parentID string, now time.Time) (*domain.GiftUnit, error) {
	p, err := repo.GetGiftUnit(ctx, tx, parentID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrGiftNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := repo.MarkContinued(ctx, tx, p.ID, now); err != nil {
		return nil, err
	}
	p.ContinuedAt = &now
	return p, nil
}

// insert creates one unit inside tx and links it to parent when non-nil.
func (s *GiftService) insert(ctx context.Context, tx *gorm.DB, in CreateGiftInput, parent *domain.GiftUnit, now time.Time) (*domain.GiftUnit, error) {
	g := &domain.GiftUnit{
		ProductID:          in.ProductID,
		ProductName:        in.ProductName,
		ProductType:        in.ProductType,
		Quantity:           in.Quantity,
		OriginalOrderID:    in.OriginalOrderID,
		GiftedByCustomerID: in.GiftedByCustomerID,
		GiftedByName:       in.GiftedByName,
		Status:             domain.GiftAvailable,
		CreatedAt:          now,
		ExpiresAt:          in.ExpiresAt,
		ChainPosition:      1,
	}
	if g.ExpiresAt == nil && s.DefaultTTL > 0 {
		exp := now.Add(s.DefaultTTL)
		g.ExpiresAt = &exp
	}
	if parent != nil {
		pid := parent.ID
		g.ContinuedFromGiftUnitID = &pid
		g.ChainPosition = parent.ChainPosition + 1
	}
	if err := repo.CreateGiftUnit(ctx, tx, g); err != nil {
		return nil, err
	}
	if parent != nil {
		if err := repo.AppendContinuation(ctx, tx, parent.ID, g.ID); err != nil {
			return nil, err
		}
		parent.ContinuedByGiftUnitIDs = append(parent.ContinuedByGiftUnitIDs, g.ID)
	}
	return g, nil
}

func (s *GiftService) publishCreated(g domain.GiftUnit, now time.Time) {
	if g.IsRoot() {
		giftsCreated.WithLabelValues("root").Inc()
	} else {
		giftsCreated.WithLabelValues("continuation").Inc()
	}
	if s.Events == nil {
		return
	}
	s.Events.GiftCreated(g)
	if !g.IsRoot() {
		s.Events.ChainContinued(*g.ContinuedFromGiftUnitID, now, g)
	}
}

// validate normalizes in and checks required fields.
func (s *GiftService) validate(in *CreateGiftInput) error {
	in.ProductID = strings.TrimSpace(in.ProductID)
	in.ProductName = strings.TrimSpace(in.ProductName)
	in.OriginalOrderID = strings.TrimSpace(in.OriginalOrderID)
	if in.ProductID == "" || in.ProductName == "" || in.OriginalOrderID == "" {
		return ErrInvalidInput
	}
	if in.Quantity < 0 {
		return ErrInvalidInput
	}
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	// SQLite keeps times as text, so expiry comparisons only hold in UTC.
	if in.ExpiresAt != nil {
		exp := in.ExpiresAt.UTC()
		in.ExpiresAt = &exp
	}
	in.ProductType = trimOptional(in.ProductType)
	in.GiftedByCustomerID = trimOptional(in.GiftedByCustomerID)
	in.ContinuedFromGiftUnitID = trimOptional(in.ContinuedFromGiftUnitID)
	in.GiftedByName = s.normalizeGifterName(in.GiftedByName)
	return nil
}

// normalizeGifterName collapses whitespace, title-cases and clips the name.
// Blank names become nil so displays fall back to the anonymous label.
func (s *GiftService) normalizeGifterName(name *string) *string {
	if name == nil {
		return nil
	}
	n := strings.Join(strings.Fields(*name), " ")
	if n == "" {
		return nil
	}
	loc := s.NameLocale
	if loc == language.Und {
		loc = language.English
	}
	n = cases.Title(loc).String(n)
	if utf8.RuneCountInString(n) > gifterNameMaxLen {
		n = string([]rune(n)[:gifterNameMaxLen])
	}
	return &n
}

func trimOptional(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}
