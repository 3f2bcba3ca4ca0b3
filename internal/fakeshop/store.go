// Package fakeshop is an in-memory authoritative backend with the same REST
// surface the client talks to. It backs `shopsync serve` and the HTTP
// client's integration tests.
package fakeshop

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/shopsync/internal/model"
)

// Error is a rejection with the HTTP status it is served with.
type Error struct {
	Status  int
	Message string

	// Structured errors are served as {"error": Message}; others as plain text.
	Structured bool
}

func (e *Error) Error() string { return e.Message }

func textError(status int, format string, args ...any) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...)}
}

func jsonError(status int, format string, args ...any) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...), Structured: true}
}

type user struct {
	id       int64
	username string
	email    string
	hash     []byte
	role     string
}

// Store holds the shop's data.
type Store struct {
	mu       sync.RWMutex
	products map[int64]model.Product
	orders   []model.Order
	users    []user

	nextProduct int64
	nextOrder   int64
	nextLine    int64
	nextUser    int64

	now  func() time.Time
	cost int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock sets the time source used for order dates.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// WithHashCost sets the bcrypt cost for stored passwords.
func WithHashCost(cost int) StoreOption {
	return func(s *Store) {
		s.cost = cost
	}
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		products:    make(map[int64]model.Product),
		nextProduct: 1,
		nextOrder:   1,
		nextLine:    1,
		nextUser:    1,
		now:         time.Now,
		cost:        bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed adds the default accounts and a small catalog.
func (s *Store) Seed() error {
	if _, err := s.addUser("admin", "admin@example.com", "admin123", "ROLE_ADMIN"); err != nil {
		return err
	}
	if _, err := s.addUser("Renuka", "renuka@example.com", "password", "ROLE_USER"); err != nil {
		return err
	}

	for _, d := range []model.ProductDraft{
		{Name: "Assam Tea", Price: 10, StockQuantity: 25, Description: "Strong black tea, 250g"},
		{Name: "Cardamom", Price: 6.5, StockQuantity: 40, Description: "Green pods, 100g"},
		{Name: "Teak Serving Tray", Price: 32, StockQuantity: 3},
		{Name: "Saffron", Price: 18.75, StockQuantity: 0, Description: "Out of season"},
	} {
		if _, err := s.CreateProduct(d); err != nil {
			return err
		}
	}
	return nil
}

// PutProduct stores p under its own id, including sentinel ids.
// Used to reproduce inconsistent catalog data.
func (s *Store) PutProduct(p model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
	if p.ID >= s.nextProduct {
		s.nextProduct = p.ID + 1
	}
}

// Products returns the catalog ordered by id.
func (s *Store) Products() []model.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Product returns one product.
func (s *Store) Product(id int64) (model.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	return p, ok
}

func validateProduct(name string, price float64, stock int) error {
	switch {
	case strings.TrimSpace(name) == "":
		return jsonError(http.StatusBadRequest, "Product name is required")
	case price <= 0:
		return jsonError(http.StatusBadRequest, "Price must be greater than 0")
	case stock < 0:
		return jsonError(http.StatusBadRequest, "Stock quantity cannot be negative")
	}
	return nil
}

// CreateProduct validates d and assigns the next id.
func (s *Store) CreateProduct(d model.ProductDraft) (model.Product, error) {
	if err := validateProduct(d.Name, d.Price, d.StockQuantity); err != nil {
		return model.Product{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p := d.Product(s.nextProduct)
	s.nextProduct++
	s.products[p.ID] = p
	return p, nil
}

// UpdateProduct overwrites the product with the given id.
func (s *Store) UpdateProduct(id int64, p model.Product) (model.Product, error) {
	if err := validateProduct(p.Name, p.Price, p.StockQuantity); err != nil {
		return model.Product{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return model.Product{}, textError(http.StatusNotFound, "Product not found with id: %d", id)
	}
	p.ID = id
	s.products[id] = p
	return p, nil
}

// DeleteProduct removes a product.
func (s *Store) DeleteProduct(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return textError(http.StatusNotFound, "Product not found with id: %d", id)
	}
	delete(s.products, id)
	return nil
}

// PlaceOrder checks stock for every line, then decrements it and records
// the order at PLACED/PENDING. Prices come from the catalog, never the request.
// Nothing changes unless every line can be served.
func (s *Store) PlaceOrder(req model.OrderRequest) (model.Order, error) {
	if len(req.Items) == 0 {
		return model.Order{}, textError(http.StatusBadRequest, "Order must contain at least one item")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.userByID(req.UserID)
	if !ok {
		return model.Order{}, textError(http.StatusBadRequest, "User not found")
	}

	needed := make(map[int64]int)
	for _, it := range req.Items {
		p, ok := s.products[it.ProductID]
		if !ok || model.IsSentinel(it.ProductID) {
			return model.Order{}, textError(http.StatusBadRequest, "Product not found with id: %d", it.ProductID)
		}
		if it.Quantity < 1 {
			return model.Order{}, textError(http.StatusBadRequest, "Invalid quantity for: %s", p.Name)
		}
		needed[it.ProductID] += it.Quantity
		if needed[it.ProductID] > p.StockQuantity {
			return model.Order{}, textError(http.StatusBadRequest, "Insufficient stock for: %s", p.Name)
		}
	}

	order := model.Order{
		ID:            s.nextOrder,
		User:          model.OrderUser{ID: u.id, Username: u.username},
		Status:        model.StatusPlaced,
		PaymentStatus: model.PaymentPending,
		CreatedAt:     s.now().UTC(),
	}
	s.nextOrder++

	for _, it := range req.Items {
		p := s.products[it.ProductID]
		p.StockQuantity -= it.Quantity
		s.products[p.ID] = p

		order.TotalAmount += p.Price * float64(it.Quantity)
		order.Lines = append(order.Lines, model.OrderLine{ID: s.nextLine, Product: p, Quantity: it.Quantity})
		s.nextLine++
	}
	s.orders = append(s.orders, order)
	return order, nil
}

// Orders returns every order in placement order.
func (s *Store) Orders() []model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Order, len(s.orders))
	copy(out, s.orders)
	return out
}

// UserOrders returns the orders owned by userID.
func (s *Store) UserOrders(userID int64) []model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.Order{}
	for _, o := range s.orders {
		if o.User.ID == userID {
			out = append(out, o)
		}
	}
	return out
}

// SetOrderStatus sets either status field. The backend is authoritative and
// accepts any known value; forward-only checks happen client-side.
func (s *Store) SetOrderStatus(id int64, status, payment string) (model.Order, error) {
	var st model.OrderStatus
	var ps model.PaymentStatus
	var err error
	if status != "" {
		if st, err = model.ParseOrderStatus(status); err != nil {
			return model.Order{}, textError(http.StatusBadRequest, "Invalid status: %s", status)
		}
	}
	if payment != "" {
		if ps, err = model.ParsePaymentStatus(payment); err != nil {
			return model.Order{}, textError(http.StatusBadRequest, "Invalid payment status: %s", payment)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		if s.orders[i].ID != id {
			continue
		}
		if st != "" {
			s.orders[i].Status = st
		}
		if ps != "" {
			s.orders[i].PaymentStatus = ps
		}
		return s.orders[i], nil
	}
	return model.Order{}, textError(http.StatusNotFound, "Order not found with id: %d", id)
}

// Register creates a ROLE_USER account.
func (s *Store) Register(d model.UserDraft) error {
	if strings.TrimSpace(d.Username) == "" || d.Password == "" {
		return textError(http.StatusBadRequest, "Username and password are required")
	}
	_, err := s.addUser(d.Username, d.Email, d.Password, "ROLE_USER")
	return err
}

// Authenticate checks credentials and returns the session without a token.
func (s *Store) Authenticate(username, password string) (model.Session, error) {
	s.mu.RLock()
	u, ok := s.userByName(username)
	s.mu.RUnlock()
	if !ok {
		return model.Session{}, textError(http.StatusUnauthorized, "User not found")
	}
	if bcrypt.CompareHashAndPassword(u.hash, []byte(password)) != nil {
		return model.Session{}, textError(http.StatusUnauthorized, "Wrong password")
	}
	role, err := model.ParseRole(u.role)
	if err != nil {
		return model.Session{}, textError(http.StatusInternalServerError, "corrupt role for %s", u.username)
	}
	return model.Session{UserID: u.id, Username: u.username, Role: role}, nil
}

func (s *Store) addUser(username, email, password, role string) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.userByName(username); taken {
		return 0, textError(http.StatusBadRequest, "Username is already taken!")
	}
	u := user{id: s.nextUser, username: username, email: email, hash: hash, role: role}
	s.nextUser++
	s.users = append(s.users, u)
	return u.id, nil
}

func (s *Store) userByName(name string) (user, bool) {
	for _, u := range s.users {
		if u.username == name {
			return u, true
		}
	}
	return user{}, false
}

func (s *Store) userByID(id int64) (user, bool) {
	for _, u := range s.users {
		if u.id == id {
			return u, true
		}
	}
	return user{}, false
}
