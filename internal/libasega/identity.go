package libasega

import (
	"github.com/ethereum/asega/internal/ledger"
	"github.com/ethereum/asega/internal/schema"
	"github.com/ethereum/go-ethereum/common"
)

// FixedName is the reserved identity name for the signing account itself.
const FixedName = "dev"

// FixedAddress is the address of the fixed identity. It does not follow the
// configured signing account.
var FixedAddress = ledger.DefaultAccount

// Contract is a deployed contract.
type Contract struct {
	Name    string
	Address common.Address
	Schema  *schema.Schema
}

// Identity is a named actor of the tests. It is either a *ProxyIdentity or a
// *FixedIdentity.
type Identity interface {
	Name() string
	TargetName() string
	Address() common.Address

	// Target is the linked contract, nil before linking.
	Target() *Contract

	// TxAddress is where state-changing calls are sent, QueryAddress is where
	// read-only calls are sent.
	TxAddress() common.Address
	QueryAddress() common.Address

	linked(c *Contract) Identity
}

// ProxyIdentity is a deployed forwarding contract. State-changing calls go
// through the proxy, so the target sees the proxy as sender. Read-only calls go
// to the target directly.
type ProxyIdentity struct {
	name   string
	target string
	addr   common.Address
	linkTo *Contract
}

// NewProxyIdentity creates an unlinked proxy identity deployed at addr.
func NewProxyIdentity(name, target string, addr common.Address) *ProxyIdentity {
	return &ProxyIdentity{name: name, target: target, addr: addr}
}

func (id *ProxyIdentity) Name() string            { return id.name }
func (id *ProxyIdentity) TargetName() string      { return id.target }
func (id *ProxyIdentity) Address() common.Address { return id.addr }
func (id *ProxyIdentity) Target() *Contract       { return id.linkTo }

func (id *ProxyIdentity) TxAddress() common.Address {
	return id.addr
}

func (id *ProxyIdentity) QueryAddress() common.Address {
	if id.linkTo == nil {
		return common.Address{}
	}
	return id.linkTo.Address
}

func (id *ProxyIdentity) linked(c *Contract) Identity {
	cpy := *id
	cpy.linkTo = c
	return &cpy
}

// FixedIdentity is the signing account acting without a proxy. Both kinds of
// calls go directly to the target.
type FixedIdentity struct {
	name   string
	target string
	linkTo *Contract
}

// NewFixedIdentity creates an unlinked fixed identity.
func NewFixedIdentity(name, target string) *FixedIdentity {
	return &FixedIdentity{name: name, target: target}
}

func (id *FixedIdentity) Name() string            { return id.name }
func (id *FixedIdentity) TargetName() string      { return id.target }
func (id *FixedIdentity) Address() common.Address { return FixedAddress }
func (id *FixedIdentity) Target() *Contract       { return id.linkTo }

func (id *FixedIdentity) TxAddress() common.Address {
	return id.QueryAddress()
}

func (id *FixedIdentity) QueryAddress() common.Address {
	if id.linkTo == nil {
		return common.Address{}
	}
	return id.linkTo.Address
}

func (id *FixedIdentity) linked(c *Contract) Identity {
	cpy := *id
	cpy.linkTo = c
	return &cpy
}

// Identities is an ordered set of identities. The order is the order of the
// identity file.
type Identities struct {
	list  []Identity
	index map[string]int
}

// NewIdentities creates a set. Names must be unique.
func NewIdentities(ids ...Identity) (*Identities, error) {
	s := &Identities{index: make(map[string]int, len(ids))}
	for _, id := range ids {
		if _, dup := s.index[id.Name()]; dup {
			return nil, &ConfigError{Msg: "duplicate identity " + id.Name()}
		}
		s.index[id.Name()] = len(s.list)
		s.list = append(s.list, id)
	}
	return s, nil
}

// Len returns the number of identities.
func (s *Identities) Len() int {
	return len(s.list)
}

// Lookup finds an identity by name.
func (s *Identities) Lookup(name string) (Identity, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.list[i], true
}

// All returns every identity.
func (s *Identities) All() []Identity {
	return append([]Identity(nil), s.list...)
}

// Except returns every identity but the named one.
func (s *Identities) Except(name string) []Identity {
	out := make([]Identity, 0, len(s.list))
	for _, id := range s.list {
		if id.Name() != name {
			out = append(out, id)
		}
	}
	return out
}

// Names returns the identity names in order.
func (s *Identities) Names() []string {
	names := make([]string, len(s.list))
	for i, id := range s.list {
		names[i] = id.Name()
	}
	return names
}
