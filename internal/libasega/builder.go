package libasega

import (
	"context"

	"github.com/ethereum/asega/internal/ledger"
	"github.com/ethereum/asega/internal/schema"
	"github.com/ethereum/asega/internal/specfile"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"gopkg.in/inconshreveable/log15.v2"
)

// Builder deploys identities and contracts and links them.
type Builder struct {
	Session  Session
	Compiler Compiler

	// IdentitySource is the Solidity source of the forwarding proxy. The embedded
	// ledger.IdentitySource is used when empty.
	IdentitySource string
	Log            log15.Logger

	proxy *ledger.Artifact
}

func (b *Builder) log() log15.Logger {
	if b.Log == nil {
		return log15.Root()
	}
	return b.Log
}

// Build runs all build phases for a suite: identities are deployed, contracts
// are compiled from sources and deployed, then identities are linked to their
// targets.
func (b *Builder) Build(ctx context.Context, suite *Suite, sources []string) (*Identities, error) {
	if err := CheckTargets(suite); err != nil {
		return nil, err
	}
	ids, err := b.BuildIdentities(ctx, suite.Identities)
	if err != nil {
		return nil, err
	}
	b.log().Info("compiling contracts", "sources", sources)
	artifacts, err := b.Compiler.Compile(ctx, sources...)
	if err != nil {
		return nil, errors.Wrap(err, "can't compile contracts")
	}
	contracts, err := b.BuildContracts(ctx, artifacts, suite.Contracts, ids)
	if err != nil {
		return nil, err
	}
	return b.Link(ctx, ids, contracts)
}

// BuildIdentities deploys a forwarding proxy for every identity except the
// fixed one.
func (b *Builder) BuildIdentities(ctx context.Context, specs []IdentitySpec) (*Identities, error) {
	b.log().Info("building identities", "count", len(specs))
	list := make([]Identity, 0, len(specs))
	for _, spec := range specs {
		if spec.Name == FixedName {
			list = append(list, NewFixedIdentity(spec.Name, spec.Target))
			continue
		}
		proxy, err := b.proxyArtifact(ctx)
		if err != nil {
			return nil, err
		}
		addr, err := b.deploy(ctx, proxy.Code)
		if err != nil {
			return nil, errors.Wrapf(err, "can't deploy identity %s", spec.Name)
		}
		b.log().Debug("identity deployed", "identity", spec.Name, "address", addr)
		list = append(list, NewProxyIdentity(spec.Name, spec.Target, addr))
	}
	return NewIdentities(list...)
}

// BuildContracts deploys the contracts of the contract file. Constructor
// arguments referring to identities resolve to their addresses.
func (b *Builder) BuildContracts(ctx context.Context, artifacts map[string]*ledger.Artifact, specs []ContractSpec, ids *Identities) (map[string]*Contract, error) {
	contracts := make(map[string]*Contract, len(specs))
	for _, spec := range specs {
		art, code, err := constructorCode(artifacts, spec, ids)
		if err != nil {
			return nil, err
		}
		log := b.log().New("contract", spec.Name)
		log.Info("deploying contract")
		addr, err := b.deploy(ctx, code)
		if err != nil {
			return nil, errors.Wrapf(err, "can't deploy contract %s", spec.Name)
		}
		log.Debug("contract deployed", "address", addr)
		contracts[spec.Name] = &Contract{Name: spec.Name, Address: addr, Schema: schema.New(art.ABI)}
	}
	return contracts, nil
}

// constructorCode returns the creation code of a contract with the encoded
// constructor arguments appended.
func constructorCode(artifacts map[string]*ledger.Artifact, spec ContractSpec, ids *Identities) (*ledger.Artifact, []byte, error) {
	art := artifacts[spec.Name]
	if art == nil {
		return nil, nil, configErrorf(specfile.ContractFile, spec.Line, "contract %q not found in compiled sources", spec.Name)
	}
	args := make([]schema.Value, len(spec.Args))
	for i, tok := range spec.Args {
		vs, err := tok.Resolve(ids)
		if err != nil {
			return nil, nil, configErrorf(specfile.ContractFile, spec.Line, "%v", err)
		}
		args[i] = vs[0]
	}
	encoded, err := schema.New(art.ABI).Constructor().Encode(args)
	if err != nil {
		return nil, nil, schemaError(spec.Name+".constructor", err)
	}
	return art, append(append([]byte{}, art.Code...), encoded...), nil
}

// Link points every identity at its target contract. Proxy identities get a
// set_target transaction. It returns the linked identities.
func (b *Builder) Link(ctx context.Context, ids *Identities, contracts map[string]*Contract) (*Identities, error) {
	for _, id := range ids.All() {
		if contracts[id.TargetName()] == nil {
			return nil, configErrorf(specfile.IdentityFile, 0, "identity %s: unknown target contract %q", id.Name(), id.TargetName())
		}
	}
	linked := make([]Identity, 0, ids.Len())
	for _, id := range ids.All() {
		c := contracts[id.TargetName()]
		if proxy, ok := id.(*ProxyIdentity); ok {
			if err := b.setTarget(ctx, proxy, c.Address); err != nil {
				return nil, err
			}
		}
		b.log().Debug("identity linked", "identity", id.Name(), "target", c.Name, "address", c.Address)
		linked = append(linked, id.linked(c))
	}
	return NewIdentities(linked...)
}

func (b *Builder) setTarget(ctx context.Context, id *ProxyIdentity, target common.Address) error {
	proxy, err := b.proxyArtifact(ctx)
	if err != nil {
		return err
	}
	m, err := schema.New(proxy.ABI).Method("set_target")
	if err != nil {
		return errors.Wrap(err, "invalid identity contract")
	}
	data, err := m.Encode([]schema.Value{schema.Address(target)})
	if err != nil {
		return err
	}
	if err := b.Session.Unlock(ctx); err != nil {
		return err
	}
	res, err := b.Session.Transact(ctx, id.Address(), data)
	if err != nil {
		return errors.Wrapf(err, "can't link identity %s", id.Name())
	}
	if res.Failed {
		return errors.Errorf("can't link identity %s: %s", id.Name(), res.Reason)
	}
	return nil
}

func (b *Builder) deploy(ctx context.Context, code []byte) (common.Address, error) {
	if err := b.Session.Unlock(ctx); err != nil {
		return common.Address{}, err
	}
	return b.Session.Deploy(ctx, code)
}

func (b *Builder) proxyArtifact(ctx context.Context) (*ledger.Artifact, error) {
	if b.proxy != nil {
		return b.proxy, nil
	}
	source := b.IdentitySource
	if source == "" {
		source = ledger.IdentitySource
	}
	artifacts, err := b.Compiler.CompileSource(ctx, source)
	if err != nil {
		return nil, errors.Wrap(err, "can't compile identity contract")
	}
	art := artifacts[ledger.IdentityContract]
	if art == nil {
		return nil, errors.Errorf("identity source does not define %s", ledger.IdentityContract)
	}
	b.proxy = art
	return art, nil
}

// CheckTargets verifies that every identity targets a contract of the suite.
func CheckTargets(suite *Suite) error {
	known := make(map[string]bool, len(suite.Contracts))
	for _, c := range suite.Contracts {
		known[c.Name] = true
	}
	for _, id := range suite.Identities {
		if !known[id.Target] {
			return configErrorf(specfile.IdentityFile, id.Line, "identity %s: unknown target contract %q", id.Name, id.Target)
		}
	}
	return nil
}
