package ledger

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"os/exec"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/compiler"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

// IdentitySource is the Solidity source of the forwarding proxy deployed for
// every proxy identity.
//
//go:embed identity.sol
var IdentitySource string

// IdentityContract is the name of the proxy contract in IdentitySource.
const IdentityContract = "TestIdentity"

// Artifact is a compiled contract.
type Artifact struct {
	Name string
	ABI  abi.ABI
	Code []byte
}

// Solc compiles Solidity sources by running the solc binary.
type Solc struct {
	Path string // defaults to "solc" in $PATH
}

// Compile compiles the given files. The result is keyed by contract name.
func (s *Solc) Compile(ctx context.Context, files ...string) (map[string]*Artifact, error) {
	args := append([]string{"--combined-json", "abi,bin"}, files...)
	out, err := s.run(ctx, nil, args)
	if err != nil {
		return nil, err
	}
	return ParseCombinedJSON(out, strings.Join(files, ","))
}

// CompileSource compiles Solidity source code passed through standard input.
func (s *Solc) CompileSource(ctx context.Context, source string) (map[string]*Artifact, error) {
	out, err := s.run(ctx, strings.NewReader(source), []string{"--combined-json", "abi,bin", "-"})
	if err != nil {
		return nil, err
	}
	return ParseCombinedJSON(out, source)
}

func (s *Solc) run(ctx context.Context, stdin *strings.Reader, args []string) ([]byte, error) {
	path := s.Path
	if path == "" {
		path = "solc"
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	if stdin != nil {
		cmd.Stdin = stdin
	}
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, errors.Errorf("solc: %v\n%s", err, stderr.Bytes())
	}
	return stdout.Bytes(), nil
}

// ParseCombinedJSON converts the output of 'solc --combined-json abi,bin' to
// artifacts keyed by contract name. The source file prefix of solc's
// "file:Contract" keys is dropped.
func ParseCombinedJSON(combinedJSON []byte, source string) (map[string]*Artifact, error) {
	contracts, err := compiler.ParseCombinedJSON(combinedJSON, source, "", "", "")
	if err != nil {
		return nil, errors.Wrap(err, "invalid compiler output")
	}
	artifacts := make(map[string]*Artifact, len(contracts))
	for key, c := range contracts {
		name := key
		if i := strings.LastIndexByte(key, ':'); i >= 0 {
			name = key[i+1:]
		}
		if _, dup := artifacts[name]; dup {
			return nil, errors.Errorf("contract %s is defined more than once", name)
		}
		abiJSON, err := json.Marshal(c.Info.AbiDefinition)
		if err != nil {
			return nil, errors.Wrapf(err, "contract %s", name)
		}
		parsed, err := abi.JSON(bytes.NewReader(abiJSON))
		if err != nil {
			return nil, errors.Wrapf(err, "contract %s has invalid ABI", name)
		}
		code, err := hexutil.Decode(c.Code)
		if err != nil {
			return nil, errors.Wrapf(err, "contract %s has invalid bytecode", name)
		}
		artifacts[name] = &Artifact{Name: name, ABI: parsed, Code: code}
	}
	return artifacts, nil
}
