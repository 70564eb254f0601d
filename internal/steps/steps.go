// Package steps derives checkout step state from a cart snapshot.
//
// Nothing is stored: the active step comes from navigation and every
// completion flag is a predicate over the cart, so the two can never
// disagree with the backend.
package steps

import (
	"fmt"
	"strings"

	"storefront-checkout/internal/model"
)

// Step is a checkout step. Steps are ordered; the zero value is Address.
type Step int

const (
	Address Step = iota
	Delivery
	Payment
	Review
	Confirmed
)

var names = [...]string{"address", "delivery", "payment", "review", "confirmed"}

// All lists every step in order.
func All() []Step {
	return []Step{Address, Delivery, Payment, Review, Confirmed}
}

func (s Step) String() string {
	if s < Address || s > Confirmed {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return names[s]
}

// MarshalText encodes the step by name.
func (s Step) MarshalText() ([]byte, error) {
	if s < Address || s > Confirmed {
		return nil, fmt.Errorf("invalid step %d", int(s))
	}
	return []byte(names[s]), nil
}

// UnmarshalText decodes a step name.
func (s *Step) UnmarshalText(b []byte) error {
	step, err := Parse(string(b))
	if err != nil {
		return err
	}
	*s = step
	return nil
}

// Parse returns the step named name. An empty name is Address.
func Parse(name string) (Step, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Address, nil
	}
	for i, n := range names {
		if n == name {
			return Step(i), nil
		}
	}
	return Address, model.NewValidationError("step", fmt.Sprintf("unknown step %q", name))
}

// Status is the derived state of one step.
type Status struct {
	Step      Step `json:"step"`
	Complete  bool `json:"complete"`
	Reachable bool `json:"reachable"`
	Current   bool `json:"current"`
}

// Progress is the state of every step for one cart and active step.
type Progress struct {
	Current Step     `json:"current"`
	Steps   []Status `json:"steps"`
}

// Evaluate computes all step flags for cart with current as the active step.
// A nil cart has no complete steps.
//
//	address   shipping address and email are set
//	delivery  address complete and a shipping method is set
//	payment   delivery complete and a provider is recorded or a session exists
//	review    payment complete and review or later is active
//	confirmed payment complete and confirmed is active
//
// A step is reachable when it is at or before current, or already complete.
func Evaluate(cart *model.Cart, current Step) Progress {
	if current < Address {
		current = Address
	}
	if current > Confirmed {
		current = Confirmed
	}

	address := cart != nil && cart.HasShippingAddress() && strings.TrimSpace(cart.Email) != ""
	delivery := address && len(cart.ShippingMethods) > 0
	payment := delivery && (cart.LogicalProvider() != "" || cart.PaymentSessionCount() > 0)

	complete := [...]bool{
		Address:   address,
		Delivery:  delivery,
		Payment:   payment,
		Review:    payment && current >= Review,
		Confirmed: payment && current >= Confirmed,
	}

	p := Progress{Current: current, Steps: make([]Status, len(complete))}
	for i, done := range complete {
		step := Step(i)
		p.Steps[i] = Status{
			Step:      step,
			Complete:  done,
			Reachable: step <= current || done,
			Current:   step == current,
		}
	}
	return p
}

// Complete reports whether step is complete.
func (p Progress) Complete(step Step) bool {
	return p.status(step).Complete
}

// Reachable reports whether the shopper may navigate to step.
func (p Progress) Reachable(step Step) bool {
	return p.status(step).Reachable
}

// FirstIncomplete returns the earliest incomplete step, or Confirmed when
// every step is complete.
func (p Progress) FirstIncomplete() Step {
	for _, s := range p.Steps {
		if !s.Complete {
			return s.Step
		}
	}
	return Confirmed
}

// Blocker returns the earliest incomplete step before the active one.
// A shopper who navigates straight to a later step is sent there instead.
func (p Progress) Blocker() (Step, bool) {
	for _, s := range p.Steps {
		if s.Step >= p.Current {
			break
		}
		if !s.Complete {
			return s.Step, true
		}
	}
	return p.Current, false
}

func (p Progress) status(step Step) Status {
	if int(step) < 0 || int(step) >= len(p.Steps) {
		return Status{Step: step}
	}
	return p.Steps[step]
}
