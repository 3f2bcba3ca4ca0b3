package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/shopsync/internal/failure"
	"github.com/roach88/shopsync/internal/model"
	"github.com/roach88/shopsync/internal/optimistic"
)

type setupFunc func(h *Harness, args map[string]any) error

type flowFunc func(ctx context.Context, h *Harness, args map[string]any) (map[string]any, error)

type captureFunc func(h *Harness) ([]map[string]any, error)

// setupActions change the shop behind the client's back.
var setupActions = map[string]setupFunc{
	"shop.put_product": func(h *Harness, args map[string]any) error {
		var p model.Product
		if err := decodeArgs(args, &p); err != nil {
			return err
		}
		h.shop.PutProduct(p)
		return nil
	},
	"shop.delete_product": func(h *Harness, args map[string]any) error {
		id, err := intArg(args, "product_id")
		if err != nil {
			return err
		}
		return h.shop.DeleteProduct(id)
	},
	"shop.set_order_status": func(h *Harness, args map[string]any) error {
		id, err := intArg(args, "order_id")
		if err != nil {
			return err
		}
		_, err = h.shop.SetOrderStatus(id, strArg(args, "status"), strArg(args, "payment_status"))
		return err
	},
	"shop.register": func(h *Harness, args map[string]any) error {
		var d model.UserDraft
		if err := decodeArgs(args, &d); err != nil {
			return err
		}
		return h.shop.Register(d)
	},
}

// flowActions drive the client stack.
var flowActions = map[string]flowFunc{
	"login": func(ctx context.Context, h *Harness, args map[string]any) (map[string]any, error) {
		s, err := h.app.Session.Login(ctx, strArg(args, "username"), strArg(args, "password"))
		if err != nil {
			return nil, err
		}
		return map[string]any{"username": s.Username, "role": string(s.Role)}, nil
	},
	"logout": func(ctx context.Context, h *Harness, _ map[string]any) (map[string]any, error) {
		return nil, h.app.Logout(ctx)
	},
	"register": func(ctx context.Context, h *Harness, args map[string]any) (map[string]any, error) {
		var d model.UserDraft
		if err := decodeArgs(args, &d); err != nil {
			return nil, err
		}
		text, err := h.app.Session.Register(ctx, d)
		if err != nil {
			return nil, err
		}
		return map[string]any{"message": text}, nil
	},
	"products.reload": func(ctx context.Context, h *Harness, _ map[string]any) (map[string]any, error) {
		if err := h.app.Products.Reload(ctx); err != nil {
			return nil, err
		}
		return map[string]any{"count": h.app.Products.Len()}, nil
	},
	"orders.reload": func(ctx context.Context, h *Harness, _ map[string]any) (map[string]any, error) {
		if err := h.app.Orders.Reload(ctx); err != nil {
			return nil, err
		}
		return map[string]any{"count": h.app.Orders.Len()}, nil
	},
	"cart.add": func(ctx context.Context, h *Harness, args map[string]any) (map[string]any, error) {
		if _, err := h.app.Session.Require(ctx, model.RoleUser); err != nil {
			return nil, err
		}
		id, err := intArg(args, "product_id")
		if err != nil {
			return nil, err
		}
		p, err := h.app.Products.Editable(id)
		if err != nil {
			return nil, err
		}
		if err := h.app.Cart.Add(ctx, p); err != nil {
			return nil, err
		}
		for _, l := range h.app.Cart.Lines() {
			if l.Product.ID == id {
				return map[string]any{"quantity": l.Quantity}, nil
			}
		}
		return nil, nil
	},
	"cart.set": func(ctx context.Context, h *Harness, args map[string]any) (map[string]any, error) {
		index, err := intArg(args, "index")
		if err != nil {
			return nil, err
		}
		qty, err := intArg(args, "quantity")
		if err != nil {
			return nil, err
		}
		if err := h.app.Cart.SetQuantity(ctx, int(index), int(qty)); err != nil {
			return nil, err
		}
		l := h.app.Cart.Lines()[index]
		return map[string]any{"valid": l.Valid(), "error": l.Error}, nil
	},
	"cart.remove": func(ctx context.Context, h *Harness, args map[string]any) (map[string]any, error) {
		index, err := intArg(args, "index")
		if err != nil {
			return nil, err
		}
		if err := h.app.Cart.Remove(ctx, int(index)); err != nil {
			return nil, err
		}
		return map[string]any{"lines": h.app.Cart.Len()}, nil
	},
	"cart.clear": func(ctx context.Context, h *Harness, _ map[string]any) (map[string]any, error) {
		return nil, h.app.Cart.Clear(ctx)
	},
	"checkout": func(ctx context.Context, h *Harness, _ map[string]any) (map[string]any, error) {
		if _, err := h.app.Session.Require(ctx, model.RoleUser); err != nil {
			return nil, err
		}
		p, err := h.app.Checkout.Submit(ctx)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return map[string]any{"submitted": false}, nil
		}
		if err := p.Wait(ctx); err != nil {
			return nil, err
		}
		token, _ := h.app.Checkout.Confirmation()
		return map[string]any{"submitted": true, "token": token}, nil
	},
	// checkout.double submits twice without waiting in between.
	"checkout.double": func(ctx context.Context, h *Harness, _ map[string]any) (map[string]any, error) {
		first, err := h.app.Checkout.Submit(ctx)
		if err != nil {
			return nil, err
		}
		_, second := h.app.Checkout.Submit(ctx)
		if first != nil {
			if err := first.Wait(ctx); err != nil {
				return nil, err
			}
		}
		return map[string]any{
			"dispatched":     first != nil,
			"second_dropped": errors.Is(second, optimistic.ErrInFlight),
		}, nil
	},
	"checkout.dismiss": func(_ context.Context, h *Harness, _ map[string]any) (map[string]any, error) {
		h.app.Checkout.DismissConfirmation()
		return nil, nil
	},
	"admin.status": func(ctx context.Context, h *Harness, args map[string]any) (map[string]any, error) {
		if _, err := h.app.Session.Require(ctx, model.RoleAdmin); err != nil {
			return nil, err
		}
		id, err := intArg(args, "order_id")
		if err != nil {
			return nil, err
		}
		st, err := model.ParseOrderStatus(strArg(args, "status"))
		if err != nil {
			return nil, failure.Validation("%v", err)
		}
		return nil, await(ctx)(h.app.Status.UpdateStatus(ctx, id, st))
	},
	"admin.payment": func(ctx context.Context, h *Harness, args map[string]any) (map[string]any, error) {
		if _, err := h.app.Session.Require(ctx, model.RoleAdmin); err != nil {
			return nil, err
		}
		id, err := intArg(args, "order_id")
		if err != nil {
			return nil, err
		}
		st, err := model.ParsePaymentStatus(strArg(args, "status"))
		if err != nil {
			return nil, failure.Validation("%v", err)
		}
		return nil, await(ctx)(h.app.Status.UpdatePaymentStatus(ctx, id, st))
	},
	"admin.product.edit": func(ctx context.Context, h *Harness, args map[string]any) (map[string]any, error) {
		if _, err := h.app.Session.Require(ctx, model.RoleAdmin); err != nil {
			return nil, err
		}
		id, err := intArg(args, "product_id")
		if err != nil {
			return nil, err
		}
		p, err := h.app.Editor.StartEdit(id)
		if err != nil {
			return nil, err
		}
		// Fields absent from args keep their current values.
		if err := decodeArgs(args, &p); err != nil {
			return nil, err
		}
		return nil, await(ctx)(h.app.Editor.Save(ctx, p))
	},
	"admin.product.delete": func(ctx context.Context, h *Harness, args map[string]any) (map[string]any, error) {
		if _, err := h.app.Session.Require(ctx, model.RoleAdmin); err != nil {
			return nil, err
		}
		id, err := intArg(args, "product_id")
		if err != nil {
			return nil, err
		}
		return nil, await(ctx)(h.app.Editor.Delete(ctx, id))
	},
	"admin.product.add": func(ctx context.Context, h *Harness, args map[string]any) (map[string]any, error) {
		if _, err := h.app.Session.Require(ctx, model.RoleAdmin); err != nil {
			return nil, err
		}
		var d model.ProductDraft
		if err := decodeArgs(args, &d); err != nil {
			return nil, err
		}
		return nil, await(ctx)(h.app.Editor.Add(ctx, d))
	},
}

// stateTables capture the final rows of each inspectable table.
var stateTables = map[string]captureFunc{
	"cart": func(h *Harness) ([]map[string]any, error) {
		var rows []map[string]any
		for i, l := range h.app.Cart.Lines() {
			rows = append(rows, map[string]any{
				"index":      i,
				"product_id": l.Product.ID,
				"name":       l.Product.Name,
				"price":      l.Product.Price,
				"quantity":   l.Quantity,
				"valid":      l.Valid(),
				"error":      l.Error,
			})
		}
		return toRows(rows)
	},
	"products": func(h *Harness) ([]map[string]any, error) {
		return toRows(h.app.Products.Items())
	},
	"orders": func(h *Harness) ([]map[string]any, error) {
		return toRows(h.app.Orders.Items())
	},
	"checkout": func(h *Harness) ([]map[string]any, error) {
		token, showing := h.app.Checkout.Confirmation()
		return toRows([]map[string]any{{
			"state":   h.app.Checkout.State().String(),
			"view":    string(h.app.Checkout.View()),
			"token":   token,
			"showing": showing,
		}})
	},
	"shop.products": func(h *Harness) ([]map[string]any, error) {
		return toRows(h.shop.Products())
	},
	"shop.orders": func(h *Harness) ([]map[string]any, error) {
		return toRows(h.shop.Orders())
	},
}

// await waits for a submitted mutation and returns its outcome.
func await(ctx context.Context) func(*optimistic.Pending, error) error {
	return func(p *optimistic.Pending, err error) error {
		if err != nil {
			return err
		}
		return p.Wait(ctx)
	}
}

// toRows converts v to generic JSON rows.
func toRows(v any) ([]map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// decodeArgs fills dst from args using dst's JSON field names.
func decodeArgs(args map[string]any, dst any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("invalid args: %w", err)
	}
	return nil
}

func intArg(args map[string]any, key string) (int64, error) {
	switch v := args[key].(type) {
	case float64:
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	default:
		return 0, fmt.Errorf("arg %q: expected a number, got %v", key, args[key])
	}
}

func strArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// lookupFlow resolves a flow action. Shop setup actions may also appear in
// a flow to change the shop between client steps.
func lookupFlow(name string) (flowFunc, bool) {
	if fn, ok := flowActions[name]; ok {
		return fn, true
	}
	if fn, ok := setupActions[name]; ok {
		return func(_ context.Context, h *Harness, args map[string]any) (map[string]any, error) {
			return nil, fn(h, args)
		}, true
	}
	return nil, false
}
