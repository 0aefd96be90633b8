// =============================================================================
// STORE - The Replicated State Machine
// =============================================================================
//
// =============================================================================
// WHAT THIS FILE REPRESENTS
// =============================================================================
//
// An online store: an inventory of products with quantities, and the orders
// placed against it. Commands are single lines of text:
//
//   purchase <user> <product> <quantity>   mutating
//   cancel <order-id>                      mutating
//   search <user>                          read-only
//   list                                   read-only
//
// Mutating commands only ever reach Apply after consensus decided them, in
// the same order on every replica. Read-only commands are answered from the
// local copy and may be stale.
//
// =============================================================================
// INVARIANT THIS FILE MUST UPHOLD
// =============================================================================
//
// INVARIANT: Apply is deterministic. Two stores that start from the same
//            inventory and apply the same commands in the same order end in
//            the same state and return the same responses.
//
// Order ids come from a counter inside the store, never from a clock or a
// process-wide global, so every replica hands out the same id for the same
// decided purchase.
//
// =============================================================================

package store

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

var (
	ErrUnsupported = errors.New("store: command not supported")
	ErrInvalid     = errors.New("store: invalid command")
)

const (
	OpPurchase = "purchase"
	OpCancel   = "cancel"
	OpSearch   = "search"
	OpList     = "list"
)

type Order struct {
	ID       int    `json:"id"`
	User     string `json:"user"`
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
}

func (o Order) String() string {
	return fmt.Sprintf("%d %s %s %d", o.ID, o.User, o.Product, o.Quantity)
}

type Store struct {
	mu        sync.Mutex
	inventory map[string]int
	orders    map[int]Order
	carts     map[string][]int
	nextID    int
}

func New(inventory map[string]int) *Store {
	inv := make(map[string]int, len(inventory))
	for p, q := range inventory {
		inv[p] = q
	}
	return &Store{
		inventory: inv,
		orders:    make(map[int]Order),
		carts:     make(map[string][]int),
		nextID:    1,
	}
}

type command struct {
	op       string
	user     string
	product  string
	quantity int
	orderID  int
}

func parse(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, fmt.Errorf("%w: %s", ErrInvalid, line)
	}
	c := command{op: strings.ToLower(fields[0])}
	bad := fmt.Errorf("%w: %s", ErrInvalid, line)

	switch c.op {
	case OpList:
	case OpPurchase:
		if len(fields) < 4 {
			return c, bad
		}
		q, err := strconv.Atoi(fields[3])
		if err != nil {
			return c, bad
		}
		c.user, c.product, c.quantity = fields[1], fields[2], q
	case OpCancel:
		if len(fields) < 2 {
			return c, bad
		}
		id, err := strconv.Atoi(fields[1])
		if err != nil {
			return c, bad
		}
		c.orderID = id
	case OpSearch:
		if len(fields) < 2 {
			return c, bad
		}
		c.user = fields[1]
	default:
		return c, fmt.Errorf("%w: %s", ErrUnsupported, c.op)
	}
	return c, nil
}

// Validate reports whether line is a well-formed store command.
func Validate(line string) error {
	_, err := parse(line)
	return err
}

// IsReadOnly reports whether line can be answered without consensus.
// Malformed lines count as read-only: they are answered locally with an
// error response.
func IsReadOnly(line string) bool {
	c, err := parse(line)
	if err != nil {
		return true
	}
	return c.op == OpList || c.op == OpSearch
}

func (s *Store) Apply(line string) string {
	c, err := parse(line)
	switch {
	case errors.Is(err, ErrUnsupported):
		return "server command not supported: " + c.op
	case err != nil:
		return "invalid server command: " + line
	}

	switch c.op {
	case OpPurchase:
		return s.Purchase(c.user, c.product, c.quantity)
	case OpCancel:
		return s.Cancel(c.orderID)
	case OpSearch:
		return s.Search(c.user)
	default:
		return s.List()
	}
}

func (s *Store) Purchase(user, product string, quantity int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	have, ok := s.inventory[product]
	switch {
	case !ok:
		return "Not Available - We do not sell this product"
	case have < quantity:
		return "Not Available - Not enough items"
	case quantity < 0:
		return "Not Available - Negative purchases are not allowed"
	}

	s.inventory[product] = have - quantity
	o := Order{ID: s.nextID, User: user, Product: product, Quantity: quantity}
	s.nextID++
	s.orders[o.ID] = o
	s.carts[user] = append(s.carts[user], o.ID)
	return "Your order has been placed, " + o.String()
}

func (s *Store) Cancel(id int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return fmt.Sprintf("%d not found, no such order", id)
	}
	delete(s.orders, id)
	cart := s.carts[o.User]
	for i, oid := range cart {
		if oid == id {
			s.carts[o.User] = append(cart[:i:i], cart[i+1:]...)
			break
		}
	}
	s.inventory[o.Product] += o.Quantity
	return fmt.Sprintf("Order %d is canceled", id)
}

func (s *Store) Search(user string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.carts[user]
	if len(cart) == 0 {
		return "No order found for " + user
	}
	lines := make([]string, 0, len(cart))
	for _, id := range cart {
		o := s.orders[id]
		lines = append(lines, fmt.Sprintf("%d %s %d", o.ID, o.Product, o.Quantity))
	}
	return strings.Join(lines, "\n")
}

func (s *Store) List() string {
	inv := s.Inventory()
	products := make([]string, 0, len(inv))
	for p := range inv {
		products = append(products, p)
	}
	sort.Strings(products)
	lines := make([]string, 0, len(products))
	for _, p := range products {
		lines = append(lines, fmt.Sprintf("%s %d", p, inv[p]))
	}
	return strings.Join(lines, "\n")
}

// Inventory returns a copy of the current quantities.
func (s *Store) Inventory() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv := make(map[string]int, len(s.inventory))
	for p, q := range s.inventory {
		inv[p] = q
	}
	return inv
}

// Orders returns the open orders sorted by id.
func (s *Store) Orders() []Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
