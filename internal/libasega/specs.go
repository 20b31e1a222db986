package libasega

import (
	"path/filepath"
	"strings"

	"github.com/ethereum/asega/internal/specfile"
	"github.com/pkg/errors"
)

// IdentitySpec is a line of the identity file: name:target.
type IdentitySpec struct {
	Line   int
	Name   string
	Target string
}

// ContractSpec is a line of the contract file: name:[arg,...].
type ContractSpec struct {
	Line int
	Name string
	Args []ArgToken
}

// Suite is the content of a test directory.
type Suite struct {
	Dir        string
	Identities []IdentitySpec
	Contracts  []ContractSpec
	Tests      []specfile.Line // parsed once identities exist
}

// LoadSuite reads the specification files of a test directory.
func LoadSuite(dir string) (*Suite, error) {
	s := &Suite{Dir: dir}
	lines, err := specfile.ReadFile(filepath.Join(dir, specfile.IdentityFile))
	if err != nil {
		return nil, err
	}
	if s.Identities, err = ParseIdentitySpec(specfile.IdentityFile, lines); err != nil {
		return nil, err
	}
	if lines, err = specfile.ReadFile(filepath.Join(dir, specfile.ContractFile)); err != nil {
		return nil, err
	}
	if s.Contracts, err = ParseContractSpec(specfile.ContractFile, lines, s.Identities); err != nil {
		return nil, err
	}
	if s.Tests, err = specfile.ReadFile(filepath.Join(dir, specfile.TestFile)); err != nil {
		return nil, err
	}
	return s, nil
}

// ParseIdentitySpec parses the identity file.
func ParseIdentitySpec(file string, lines []specfile.Line) ([]IdentitySpec, error) {
	data, err := dataLines(file, lines)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(data))
	specs := make([]IdentitySpec, 0, len(data))
	for _, line := range data {
		fields := strings.Split(line.Text, ":")
		if len(fields) != 2 || fields[0] == "" || fields[1] == "" {
			return nil, configErrorf(file, line.Number, "expected name:target, got %q", line.Text)
		}
		name := fields[0]
		if strings.ContainsAny(name, "$,[]") {
			return nil, configErrorf(file, line.Number, "invalid identity name %q", name)
		}
		if seen[name] {
			return nil, configErrorf(file, line.Number, "duplicate identity %q", name)
		}
		seen[name] = true
		specs = append(specs, IdentitySpec{Line: line.Number, Name: name, Target: fields[1]})
	}
	return specs, nil
}

// ParseContractSpec parses the contract file. Arguments of the form $name must
// refer to an identity.
func ParseContractSpec(file string, lines []specfile.Line, ids []IdentitySpec) ([]ContractSpec, error) {
	data, err := dataLines(file, lines)
	if err != nil {
		return nil, err
	}
	// References are checked against names only, addresses don't exist yet.
	var placeholders []Identity
	for _, id := range ids {
		placeholders = append(placeholders, NewFixedIdentity(id.Name, id.Target))
	}
	names, err := NewIdentities(placeholders...)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(data))
	specs := make([]ContractSpec, 0, len(data))
	for _, line := range data {
		spec, err := parseContractLine(line, names)
		if err != nil {
			return nil, configErrorf(file, line.Number, "%v", err)
		}
		if seen[spec.Name] {
			return nil, configErrorf(file, line.Number, "duplicate contract %q", spec.Name)
		}
		seen[spec.Name] = true
		specs = append(specs, spec)
	}
	return specs, nil
}

func parseContractLine(line specfile.Line, ids *Identities) (ContractSpec, error) {
	fields := strings.SplitN(line.Text, ":", 2)
	if len(fields) != 2 || fields[0] == "" {
		return ContractSpec{}, errors.Errorf("expected name:[args], got %q", line.Text)
	}
	list := fields[1]
	if len(list) < 2 || list[0] != '[' || list[len(list)-1] != ']' {
		return ContractSpec{}, errors.Errorf("argument list %q is not enclosed in brackets", list)
	}
	spec := ContractSpec{Line: line.Number, Name: fields[0]}
	for _, tok := range strings.Split(list[1:len(list)-1], ",") {
		arg, err := parseArg(tok, ids, false)
		if err != nil {
			return ContractSpec{}, err
		}
		spec.Args = append(spec.Args, arg)
	}
	return spec, nil
}
