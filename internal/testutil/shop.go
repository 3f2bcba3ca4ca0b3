package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/shopsync/internal/failure"
	"github.com/roach88/shopsync/internal/model"
)

// Method names accepted by FakeShop.Block, Fail and Calls.
const (
	MethodListProducts   = "ListProducts"
	MethodCreateProduct  = "CreateProduct"
	MethodUpdateProduct  = "UpdateProduct"
	MethodDeleteProduct  = "DeleteProduct"
	MethodPlaceOrder     = "PlaceOrder"
	MethodListOrders     = "ListOrders"
	MethodListUserOrders = "ListUserOrders"
	MethodSetOrderStatus = "SetOrderStatus"
	MethodLogin          = "Login"
	MethodRegister       = "Register"
)

// Call records one invocation of a FakeShop method.
type Call struct {
	Method string
	Arg    any
}

// FakeShop is a controllable in-process backend.
//
// Calls can be blocked until released, made to fail, and counted. State is
// deliberately simple: products and orders are plain slices the test seeds.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeShop struct {
	mu       sync.Mutex
	products []model.Product
	orders   []model.Order
	sessions map[string]model.Session

	// placeText is returned by PlaceOrder.
	placeText string

	errs  map[string]error
	gates map[string]chan struct{}
	calls []Call

	nextProduct int64
}

// NewFakeShop creates a shop with no data. PlaceOrder answers
// "Order placed successfully! Order ID: 1" until SetPlaceText is called.
func NewFakeShop() *FakeShop {
	return &FakeShop{
		sessions:    make(map[string]model.Session),
		placeText:   "Order placed successfully! Order ID: 1",
		errs:        make(map[string]error),
		gates:       make(map[string]chan struct{}),
		nextProduct: 100,
	}
}

// SetProducts replaces the catalog.
func (f *FakeShop) SetProducts(ps ...model.Product) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products = append([]model.Product(nil), ps...)
}

// SetOrders replaces the order ledger.
func (f *FakeShop) SetOrders(os ...model.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append([]model.Order(nil), os...)
}

// SetPlaceText sets the PlaceOrder confirmation text.
func (f *FakeShop) SetPlaceText(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placeText = text
}

// AddUser makes Login succeed for username with any password except "wrong".
func (f *FakeShop) AddUser(s model.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.Username] = s
}

// Fail makes every subsequent call of method return err. A nil err clears it.
func (f *FakeShop) Fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, method)
		return
	}
	f.errs[method] = err
}

// Block makes calls of method wait until release is called.
func (f *FakeShop) Block(method string) (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gates[method] = gate

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gates[method] == gate {
				delete(f.gates, method)
			}
			f.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns how many times method was invoked.
func (f *FakeShop) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// LastArg returns the argument of the most recent call of method.
func (f *FakeShop) LastArg(method string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Method == method {
			return f.calls[i].Arg, true
		}
	}
	return nil, false
}

// enter records the call, waits on any gate and returns the injected error.
func (f *FakeShop) enter(method string, arg any) error {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Method: method, Arg: arg})
	gate := f.gates[method]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errs[method]
}

func (f *FakeShop) ListProducts(ctx context.Context) ([]model.Product, error) {
	if err := f.enter(MethodListProducts, nil); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Product(nil), f.products...), nil
}

func (f *FakeShop) CreateProduct(ctx context.Context, d model.ProductDraft) (model.Product, error) {
	if err := f.enter(MethodCreateProduct, d); err != nil {
		return model.Product{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := d.Product(f.nextProduct)
	f.nextProduct++
	f.products = append(f.products, p)
	return p, nil
}

func (f *FakeShop) UpdateProduct(ctx context.Context, p model.Product) (model.Product, error) {
	if err := f.enter(MethodUpdateProduct, p); err != nil {
		return model.Product{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.products {
		if f.products[i].ID == p.ID {
			f.products[i] = p
			return p, nil
		}
	}
	return model.Product{}, failure.Rejected(404, []byte(fmt.Sprintf("Product not found with id: %d", p.ID)))
}

func (f *FakeShop) DeleteProduct(ctx context.Context, id int64) error {
	if err := f.enter(MethodDeleteProduct, id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.products {
		if f.products[i].ID == id {
			f.products = append(f.products[:i:i], f.products[i+1:]...)
			return nil
		}
	}
	return failure.Rejected(404, []byte(fmt.Sprintf("Product not found with id: %d", id)))
}

func (f *FakeShop) PlaceOrder(ctx context.Context, req model.OrderRequest) (string, error) {
	if err := f.enter(MethodPlaceOrder, req); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.placeText, nil
}

func (f *FakeShop) ListOrders(ctx context.Context) ([]model.Order, error) {
	if err := f.enter(MethodListOrders, nil); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Order(nil), f.orders...), nil
}

func (f *FakeShop) ListUserOrders(ctx context.Context, userID int64) ([]model.Order, error) {
	if err := f.enter(MethodListUserOrders, userID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Order
	for _, o := range f.orders {
		if o.User.ID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *FakeShop) SetOrderStatus(ctx context.Context, id int64, change model.StatusChange) (model.Order, error) {
	if err := f.enter(MethodSetOrderStatus, change); err != nil {
		return model.Order{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.orders {
		if f.orders[i].ID != id {
			continue
		}
		if change.Status != "" {
			f.orders[i].Status = change.Status
		}
		if change.PaymentStatus != "" {
			f.orders[i].PaymentStatus = change.PaymentStatus
		}
		return f.orders[i], nil
	}
	return model.Order{}, failure.Rejected(404, []byte(fmt.Sprintf("Order not found with id: %d", id)))
}

func (f *FakeShop) Login(ctx context.Context, creds model.Credentials) (model.Session, error) {
	if err := f.enter(MethodLogin, creds.Username); err != nil {
		return model.Session{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[creds.Username]
	if !ok || creds.Password == "wrong" {
		return model.Session{}, failure.Authentication("Invalid credentials", 401)
	}
	return s, nil
}

func (f *FakeShop) Register(ctx context.Context, d model.UserDraft) (string, error) {
	if err := f.enter(MethodRegister, d); err != nil {
		return "", err
	}
	return "User registered successfully!", nil
}
