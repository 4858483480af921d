package cart

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"storefront-cart/internal/availability"
	"storefront-cart/internal/model"
	"storefront-cart/internal/queue"
)

type scopeKind int

const (
	scopeAll scopeKind = iota
	scopeProduct
	scopeLine
)

// Scope selects the cart lines a surface displays and acts on.
type Scope struct {
	kind   scopeKind
	key    model.LineKey
	lineID string
}

// AllLines scopes a surface to the whole cart (cart drawer).
func AllLines() Scope { return Scope{kind: scopeAll} }

// ProductScope scopes a surface to one (product, variant) pair (product card, detail page).
func ProductScope(productID, variantID string) Scope {
	return Scope{kind: scopeProduct, key: model.LineKey{ProductID: productID, VariantID: variantID}}
}

// LineScope scopes a surface to one existing line (quantity stepper).
func LineScope(lineID string) Scope { return Scope{kind: scopeLine, lineID: lineID} }

func (sc Scope) includesLine(l model.CartLine) bool {
	switch sc.kind {
	case scopeProduct:
		return l.Key() == sc.key
	case scopeLine:
		return l.ID == sc.lineID
	default:
		return true
	}
}

func (sc Scope) includesKey(k model.LineKey) bool {
	switch sc.kind {
	case scopeProduct:
		return k == sc.key
	case scopeLine:
		return false
	default:
		return true
	}
}

// overlayEntry is the predicted effect of one in-flight action.
type overlayEntry struct {
	id      string
	kind    model.MutationKind
	key     model.LineKey
	delta   int  // quantity change for add/increment/decrement
	removes bool // the prediction deletes the line
	anchor  uint64
	title   string

	// For adds that create a line the base snapshot does not have.
	product   model.Ref[model.Product]
	variant   *model.Ref[model.Variant]
	unitPrice model.Money
}

// Surface is one UI surface's view of the cart. It applies a predicted delta
// the moment an action fires, then reconciles against the authoritative
// snapshot when the action settles. Overlays belong to their surface alone.
//
// Controls report a line's stepper disabled while any action on it is in
// flight. Actions submitted anyway (queued clicks) stack in order, except
// that a line whose in-flight prediction removes it rejects further actions
// with ErrPending until that settles.
type Surface struct {
	name    string
	scope   Scope
	session *Session

	mu      sync.Mutex
	base    *model.CartSnapshot
	overlay []*overlayEntry

	unsubscribe func()
}

// NewSurface attaches a surface to the session's snapshot hub.
func (s *Session) NewSurface(name string, scope Scope) *Surface {
	sf := &Surface{name: name, scope: scope, session: s}
	sf.base = s.hub.Current()
	sf.unsubscribe = s.hub.Subscribe(sf.onSnapshot)
	return sf
}

// Name returns the surface's label.
func (sf *Surface) Name() string { return sf.name }

// Close detaches the surface from the hub.
func (sf *Surface) Close() { sf.unsubscribe() }

// onSnapshot adopts a newer authoritative snapshot and drops every overlay
// entry anchored to an older one.
func (sf *Surface) onSnapshot(snap *model.CartSnapshot) {
	sf.mu.Lock()
	defer sf.mu.Unlock()

	if !snap.IsNewerThan(sf.base) {
		return
	}
	sf.base = snap

	kept := sf.overlay[:0]
	for _, e := range sf.overlay {
		if e.anchor >= snap.Version {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(sf.overlay); i++ {
		sf.overlay[i] = nil
	}
	sf.overlay = kept
}

func (sf *Surface) baseVersionLocked() uint64 {
	if sf.base == nil {
		return 0
	}
	return sf.base.Version
}

// displayLocked applies the overlay to the base snapshot, in submission order.
func (sf *Surface) displayLocked() []model.CartLine {
	var lines []model.CartLine
	if sf.base != nil {
		lines = make([]model.CartLine, len(sf.base.Items), len(sf.base.Items)+len(sf.overlay))
		copy(lines, sf.base.Items)
	}

	for _, e := range sf.overlay {
		idx := -1
		for i, l := range lines {
			if l.Key() == e.key {
				idx = i
				break
			}
		}

		switch {
		case idx >= 0 && e.removes:
			lines = append(lines[:idx], lines[idx+1:]...)
		case idx >= 0:
			lines[idx].Quantity += e.delta
			if lines[idx].Quantity <= 0 {
				lines = append(lines[:idx], lines[idx+1:]...)
			}
		case e.kind == model.MutationAdd && e.delta > 0:
			lines = append(lines, model.CartLine{
				Product:   e.product,
				Variant:   e.variant,
				Quantity:  e.delta,
				UnitPrice: e.unitPrice,
			})
		}
	}
	return lines
}

func (sf *Surface) displayedSnapshotLocked() *model.CartSnapshot {
	snap := &model.CartSnapshot{Items: sf.displayLocked()}
	if sf.base != nil {
		snap.ID = sf.base.ID
		snap.Version = sf.base.Version
	}
	return snap
}

func (sf *Surface) removalPendingLocked(key model.LineKey) bool {
	for _, e := range sf.overlay {
		if e.key != key {
			continue
		}
		if e.removes {
			return true
		}
	}
	return false
}

func (sf *Surface) dropEntry(id string) {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	for i, e := range sf.overlay {
		if e.id == id {
			copy(sf.overlay[i:], sf.overlay[i+1:])
			sf.overlay[len(sf.overlay)-1] = nil
			sf.overlay = sf.overlay[:len(sf.overlay)-1]
			return
		}
	}
}

// Action is an optimistic action whose prediction is already displayed.
type Action struct {
	ID   string
	Kind model.MutationKind
	Key  model.LineKey

	future *queue.Future[*model.CartSnapshot]
}

// Wait blocks until the action has been reconciled. A nil error means the
// intent holds in the returned authoritative snapshot.
func (a *Action) Wait(ctx context.Context) (*model.CartSnapshot, error) {
	return a.future.Wait(ctx)
}

// Done is closed once the action has been reconciled.
func (a *Action) Done() <-chan struct{} { return a.future.Done() }

// Add predicts qty more units of a (product, variant) pair and enqueues the add.
// Blocked adds (no stock, no variant selected) return an error without enqueueing.
func (sf *Surface) Add(ctx context.Context, productID, variantID string, qty int) (*Action, error) {
	if qty < 1 {
		return nil, model.NewValidationError("quantity", "must be at least 1")
	}
	p, err := sf.session.product(ctx, productID)
	if err != nil {
		return nil, err
	}

	title := productID
	productRef := model.RefTo[model.Product](productID)
	var variantRef *model.Ref[model.Variant]
	var unitPrice model.Money
	if p != nil {
		title = p.Title
		productRef = model.Expand(*p)
		unitPrice = p.Price
		if !p.EnableVariants {
			variantID = ""
		} else if v, ok := p.FindVariant(variantID); ok {
			ref := model.Expand(v)
			variantRef = &ref
			unitPrice = v.Price
		}
	}
	if variantRef == nil && variantID != "" {
		ref := model.RefTo[model.Variant](variantID)
		variantRef = &ref
	}
	key := model.LineKey{ProductID: productID, VariantID: variantID}
	if !sf.scope.includesKey(key) {
		return nil, model.NewValidationError("product", "outside "+sf.name+" scope")
	}

	sf.mu.Lock()
	predicted := qty
	if p != nil {
		avail := availability.ForSelection(*p, variantID, sf.displayedSnapshotLocked())
		if err := avail.Check(title, 1); err != nil {
			sf.mu.Unlock()
			return nil, err
		}
		if avail.Kind == availability.Limited && avail.Remaining < predicted {
			predicted = avail.Remaining
		}
	}
	e := sf.pushLocked(&overlayEntry{
		kind:      model.MutationAdd,
		key:       key,
		delta:     predicted,
		title:     title,
		product:   productRef,
		variant:   variantRef,
		unitPrice: unitPrice,
	})
	sf.mu.Unlock()

	m := model.Mutation{Kind: model.MutationAdd, ProductID: productID, VariantID: variantID, Quantity: qty}
	return sf.submit(e, m), nil
}

// Increment predicts one more unit on a displayed line. It is blocked
// without enqueueing when the displayed quantity already uses all stock.
func (sf *Surface) Increment(ctx context.Context, lineID string) (*Action, error) {
	line, err := sf.lineForAction(lineID)
	if err != nil {
		return nil, err
	}
	inventory := sf.session.lineInventory(ctx, line)

	sf.mu.Lock()
	// Re-read under the lock: the display may have moved since lineForAction.
	current, ok := findLine(sf.displayLocked(), line.Key())
	if !ok || sf.removalPendingLocked(line.Key()) {
		sf.mu.Unlock()
		return nil, model.NewConflictError("line " + lineID + " is being removed")
	}
	if err := availability.AvailableToAdd(inventory, current.Quantity).Check(line.Title(), 1); err != nil {
		sf.mu.Unlock()
		return nil, err
	}
	e := sf.pushLocked(&overlayEntry{kind: model.MutationIncrement, key: line.Key(), delta: 1, title: line.Title()})
	sf.mu.Unlock()

	return sf.submit(e, model.Mutation{Kind: model.MutationIncrement, LineID: lineID}), nil
}

// Decrement predicts one fewer unit; at quantity 1 the prediction removes the line.
func (sf *Surface) Decrement(ctx context.Context, lineID string) (*Action, error) {
	line, err := sf.lineForAction(lineID)
	if err != nil {
		return nil, err
	}

	sf.mu.Lock()
	current, ok := findLine(sf.displayLocked(), line.Key())
	if !ok || sf.removalPendingLocked(line.Key()) {
		sf.mu.Unlock()
		return nil, model.NewConflictError("line " + lineID + " is being removed")
	}
	e := sf.pushLocked(&overlayEntry{
		kind:    model.MutationDecrement,
		key:     line.Key(),
		delta:   -1,
		removes: current.Quantity <= 1,
		title:   line.Title(),
	})
	sf.mu.Unlock()

	return sf.submit(e, model.Mutation{Kind: model.MutationDecrement, LineID: lineID}), nil
}

// Remove predicts the line's removal.
func (sf *Surface) Remove(ctx context.Context, lineID string) (*Action, error) {
	line, err := sf.lineForAction(lineID)
	if err != nil {
		return nil, err
	}

	sf.mu.Lock()
	if sf.removalPendingLocked(line.Key()) {
		sf.mu.Unlock()
		return nil, model.NewConflictError("line " + lineID + " is being removed")
	}
	e := sf.pushLocked(&overlayEntry{kind: model.MutationRemove, key: line.Key(), removes: true, title: line.Title()})
	sf.mu.Unlock()

	return sf.submit(e, model.Mutation{Kind: model.MutationRemove, LineID: lineID}), nil
}

// lineForAction finds a displayed, in-scope line by ID. Lines with a pending
// removal report ErrPending rather than ErrNotFound.
func (sf *Surface) lineForAction(lineID string) (model.CartLine, error) {
	sf.mu.Lock()
	defer sf.mu.Unlock()

	var line model.CartLine
	found := false
	if sf.base != nil {
		line, found = sf.base.Line(lineID)
	}
	if !found {
		return model.CartLine{}, model.NewNotFoundError("cart line " + lineID)
	}
	if !sf.scope.includesLine(line) {
		return model.CartLine{}, model.NewValidationError("line", "outside "+sf.name+" scope")
	}
	if sf.removalPendingLocked(line.Key()) {
		return model.CartLine{}, model.NewConflictError("line " + lineID + " is being removed")
	}
	return line, nil
}

func findLine(lines []model.CartLine, key model.LineKey) (model.CartLine, bool) {
	for _, l := range lines {
		if l.Key() == key {
			return l, true
		}
	}
	return model.CartLine{}, false
}

func (sf *Surface) pushLocked(e *overlayEntry) *overlayEntry {
	e.id = uuid.NewString()
	e.anchor = sf.baseVersionLocked()
	sf.overlay = append(sf.overlay, e)
	return e
}

// submit enqueues m and reconciles e when it settles. Reconciliation runs in
// the mutation's queue slot, after the resulting snapshot has been published.
func (sf *Surface) submit(e *overlayEntry, m model.Mutation) *Action {
	fut := sf.session.enqueue(m, func(snap *model.CartSnapshot, err error) (*model.CartSnapshot, error) {
		return sf.settle(e, snap, err)
	})
	return &Action{ID: e.id, Kind: e.kind, Key: e.key, future: fut}
}

func (sf *Surface) settle(e *overlayEntry, snap *model.CartSnapshot, err error) (*model.CartSnapshot, error) {
	// Success or failure, the prediction is done: server state wins.
	sf.dropEntry(e.id)

	ctx := context.Background()
	notifier := sf.session.notifier

	switch {
	case err == nil:
		notifier.Notify(ctx, Notification{Level: LevelSuccess, Message: successMessage(e.kind), ProductID: e.key.ProductID})
		return snap, nil

	case errors.Is(err, model.ErrNotFound) && (e.kind == model.MutationDecrement || e.kind == model.MutationRemove):
		// The line is already gone, which is what the shopper wanted.
		notifier.Notify(ctx, Notification{Level: LevelSuccess, Message: msgRemoved, ProductID: e.key.ProductID})
		return sf.session.hub.Current(), nil

	default:
		sf.session.logger.Info("cart action rolled back",
			"surface", sf.name, "kind", e.kind, "product_id", e.key.ProductID, "error", err)
		notifier.Notify(ctx, Notification{Level: LevelError, Message: failureMessage(e.kind, e.title), ProductID: e.key.ProductID})
		return nil, err
	}
}

// View is what a surface renders.
type View struct {
	Lines         []model.CartLine `json:"lines"`
	TotalQuantity int              `json:"total_quantity"`
	Subtotal      model.Money      `json:"subtotal"`
	Version       uint64           `json:"version"`
	Optimistic    bool             `json:"optimistic"`
	Pending       int              `json:"pending"`
}

// View returns the displayed, in-scope lines. While predictions are
// outstanding the subtotal is computed from unit prices; otherwise the whole
// cart view reports the store's subtotal.
func (sf *Surface) View() View {
	sf.mu.Lock()
	defer sf.mu.Unlock()

	all := sf.displayLocked()
	v := View{
		Lines:      make([]model.CartLine, 0, len(all)),
		Version:    sf.baseVersionLocked(),
		Optimistic: len(sf.overlay) > 0,
		Pending:    len(sf.overlay),
	}
	for _, l := range all {
		if !sf.scope.includesLine(l) {
			continue
		}
		v.Lines = append(v.Lines, l)
		v.TotalQuantity += l.Quantity
		v.Subtotal = v.Subtotal.Add(l.UnitPrice.Mul(l.Quantity))
	}
	if !v.Optimistic && sf.scope.kind == scopeAll && sf.base != nil {
		v.Subtotal = sf.base.Subtotal
	}
	return v
}

// Controls is the enabled/disabled state of a surface's controls for one selection.
type Controls struct {
	Quantity          int                       `json:"quantity"`
	IncrementDisabled bool                      `json:"increment_disabled"`
	DecrementDisabled bool                      `json:"decrement_disabled"`
	AddDisabled       bool                      `json:"add_disabled"`
	Pending           bool                      `json:"pending"`
	Availability      availability.Availability `json:"availability"`
	StockMessage      string                    `json:"stock_message,omitempty"`
}

// ProductControls derives control state for a (product, variant) selection
// from the displayed state and catalog inventory.
func (sf *Surface) ProductControls(ctx context.Context, productID, variantID string) (Controls, error) {
	p, err := sf.session.product(ctx, productID)
	if err != nil {
		return Controls{}, err
	}
	if p != nil && !p.EnableVariants {
		variantID = ""
	}
	key := model.LineKey{ProductID: productID, VariantID: variantID}

	sf.mu.Lock()
	defer sf.mu.Unlock()

	displayed := sf.displayedSnapshotLocked()
	avail := availability.Availability{Kind: availability.Unlimited}
	if p != nil {
		avail = availability.ForSelection(*p, variantID, displayed)
	}
	return sf.controlsLocked(key, displayed, avail), nil
}

// LineControls derives control state for an existing line (quantity stepper).
func (sf *Surface) LineControls(ctx context.Context, lineID string) (Controls, error) {
	sf.mu.Lock()
	var line model.CartLine
	found := false
	if sf.base != nil {
		line, found = sf.base.Line(lineID)
	}
	sf.mu.Unlock()
	if !found {
		return Controls{}, model.NewNotFoundError("cart line " + lineID)
	}

	inventory := sf.session.lineInventory(ctx, line)

	sf.mu.Lock()
	defer sf.mu.Unlock()
	displayed := sf.displayedSnapshotLocked()
	avail := availability.AvailableToAdd(inventory, displayed.QuantityFor(line.Key()))
	return sf.controlsLocked(line.Key(), displayed, avail), nil
}

func (sf *Surface) controlsLocked(key model.LineKey, displayed *model.CartSnapshot, avail availability.Availability) Controls {
	qty := displayed.QuantityFor(key)
	removing := sf.removalPendingLocked(key)
	pending := false
	for _, e := range sf.overlay {
		if e.key == key {
			pending = true
			break
		}
	}
	// A line's stepper stays disabled until its in-flight action settles.
	return Controls{
		Quantity:          qty,
		IncrementDisabled: pending || removing || qty == 0 || !avail.CanAdd(1),
		DecrementDisabled: pending || removing || qty == 0,
		AddDisabled:       !avail.CanAdd(1),
		Pending:           pending,
		Availability:      avail,
		StockMessage:      availability.StockMessage(avail),
	}
}
