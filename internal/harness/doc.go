// Package harness runs scripted shopping sessions against an in-process
// shop and checks the outcome.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	setup:
//	  - action: shop.put_product
//	    args: { product_id: 9, name: Pepper, price: 4, stock_quantity: 1 }
//	flow:
//	  - invoke: login
//	    args: { username: Renuka, password: password }
//	  - invoke: cart.add
//	    args: { product_id: 9 }
//	    expect:
//	      case: CONFLICT
//	      result: { message: "Max stock reached in cart!" }
//	assertions:
//	  - type: trace_count
//	    action: cart.add
//	    count: 2
//	  - type: event_count
//	    topic: cart.changed
//	    count: 1
//	  - type: final_state
//	    table: cart
//	    where: { product_id: 9 }
//	    expect: { quantity: 1 }
//
// Setup actions change the shop directly and always succeed. Flow steps
// drive the client stack the way a user would; each step's outcome case is
// "Success" or the failure kind (VALIDATION, CONFLICT, ...), with DROPPED
// and DECLINED for a suppressed duplicate and a refused confirmation.
//
// # Assertion Types
//
//   - trace_contains: an invocation of action with matching args exists
//   - trace_order: invocations appear in the given order
//   - trace_count: an action was invoked exactly N times
//   - event_count: a notification topic was published exactly N times
//   - final_state: a row of the named table matches (cart, products,
//     orders, checkout, shop.products, shop.orders)
//
// # Deterministic Testing
//
// Every step waits for its mutation to settle and for background reloads to
// finish before the next step starts, so notifications land in the trace in
// a fixed order. Order dates come from a step clock and request ids from a
// counter. Identical scenarios produce identical traces, which makes them
// suitable for golden comparison.
package harness
